package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PERIMETER_PROJECT", "emit")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("AWS_REGION", "us-east-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Stack.Project != "emit" {
		t.Errorf("Project = %q, want emit", cfg.Stack.Project)
	}
	if cfg.Stack.Region != "us-east-1" || cfg.AWS.Region != "us-east-1" {
		t.Errorf("region = %q/%q, want us-east-1", cfg.Stack.Region, cfg.AWS.Region)
	}
	if cfg.Stack.VPCCIDR != "10.0.0.0/16" {
		t.Errorf("VPCCIDR = %q", cfg.Stack.VPCCIDR)
	}
	if cfg.Stack.ServicePort != 8000 || cfg.Stack.ListenerPort != 80 {
		t.Errorf("ports = %d/%d, want 8000/80", cfg.Stack.ServicePort, cfg.Stack.ListenerPort)
	}
	if cfg.Stack.HealthyThreshold != 2 || cfg.Stack.UnhealthyThreshold != 3 {
		t.Errorf("thresholds = %d/%d, want 2/3", cfg.Stack.HealthyThreshold, cfg.Stack.UnhealthyThreshold)
	}
	if cfg.Stack.DBPassword != "s3cret" {
		t.Error("DB password not read from DB_PASSWORD")
	}
	if cfg.Stack.WaitTimeout != 20*time.Minute {
		t.Errorf("WaitTimeout = %v", cfg.Stack.WaitTimeout)
	}
	if cfg.Deploy.Dir != "/opt/app" || cfg.Deploy.Branch != "main" || cfg.Deploy.Service != "app" {
		t.Errorf("deploy defaults = %+v", cfg.Deploy)
	}
	if cfg.Deploy.HealthURL != "http://localhost:8000/health" || cfg.Deploy.ProbeTimeout != 10*time.Second || cfg.Deploy.LogLines != 50 {
		t.Errorf("deploy probe defaults = %+v", cfg.Deploy)
	}
	if cfg.State.Driver != "sqlite3" {
		t.Errorf("State.Driver = %q", cfg.State.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("DEPLOY_PROBE_TIMEOUT", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "deploy config") {
		t.Fatalf("Load() error = %v, want deploy config error", err)
	}
}

func TestStack_Zones(t *testing.T) {
	s := Stack{Region: "eu-west-1"}
	if got := s.Zones(); got[0] != "eu-west-1a" || got[1] != "eu-west-1b" {
		t.Errorf("Zones() = %v", got)
	}
	s.AvailabilityZones = []string{"eu-west-1c", "eu-west-1a", "eu-west-1b"}
	if got := s.Zones(); len(got) != 2 || got[0] != "eu-west-1c" {
		t.Errorf("Zones() = %v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Stack: Stack{
				Region:             "us-east-1",
				VPCCIDR:            "10.0.0.0/16",
				ServicePort:        8000,
				ListenerPort:       80,
				HealthInterval:     30,
				HealthTimeout:      5,
				HealthyThreshold:   2,
				UnhealthyThreshold: 3,
				Parallelism:        4,
			},
			State:  StateConfig{Driver: "sqlite3"},
			Deploy: DeployConfig{LogLines: 50},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad cidr", mutate: func(c *Config) { c.Stack.VPCCIDR = "10.0.0.0" }, wantErr: "VPC_CIDR"},
		{name: "cidr too small", mutate: func(c *Config) { c.Stack.VPCCIDR = "10.0.0.0/24" }, wantErr: "between /16 and /20"},
		{name: "ipv6 cidr", mutate: func(c *Config) { c.Stack.VPCCIDR = "fd00::/16" }, wantErr: "IPv4"},
		{name: "zone outside region", mutate: func(c *Config) { c.Stack.AvailabilityZones = []string{"eu-west-1a"} }, wantErr: "not in region"},
		{name: "service port", mutate: func(c *Config) { c.Stack.ServicePort = 0 }, wantErr: "SERVICE_PORT"},
		{name: "healthy threshold", mutate: func(c *Config) { c.Stack.HealthyThreshold = 1 }, wantErr: "HEALTHY_THRESHOLD"},
		{name: "timeout not below interval", mutate: func(c *Config) { c.Stack.HealthTimeout = 30 }, wantErr: "HEALTH_TIMEOUT"},
		{name: "parallelism", mutate: func(c *Config) { c.Stack.Parallelism = 0 }, wantErr: "PARALLELISM"},
		{name: "driver", mutate: func(c *Config) { c.State.Driver = "mysql" }, wantErr: "STATE_DRIVER"},
		{name: "log lines", mutate: func(c *Config) { c.Deploy.LogLines = 0 }, wantErr: "DEPLOY_LOG_LINES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
