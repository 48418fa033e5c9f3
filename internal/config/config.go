package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	AWS     AWSConfig
	Stack   Stack
	State   StateConfig
	Deploy  DeployConfig
	Schema  SchemaConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// AWSConfig selects the account the stack lives in.
type AWSConfig struct {
	Region        string `env:"AWS_REGION" envDefault:"us-east-1"`
	DeployRoleARN string `env:"PERIMETER_DEPLOY_ROLE_ARN"`
	Simulate      bool   `env:"PERIMETER_SIMULATE" envDefault:"false"`
}

// Stack is the set of provisioning inputs for one deployment.
type Stack struct {
	Project           string   `env:"PERIMETER_PROJECT"`
	Region            string   `env:"AWS_REGION" envDefault:"us-east-1"`
	VPCCIDR           string   `env:"VPC_CIDR" envDefault:"10.0.0.0/16"`
	AvailabilityZones []string `env:"AVAILABILITY_ZONES" envSeparator:","`

	InstanceType   string `env:"INSTANCE_TYPE" envDefault:"t3.micro"`
	ImageParameter string `env:"IMAGE_PARAMETER" envDefault:"/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64"`
	ImageID        string `env:"IMAGE_ID"`
	ServicePort    int    `env:"SERVICE_PORT" envDefault:"8000"`
	ListenerPort   int    `env:"LISTENER_PORT" envDefault:"80"`

	HealthPath         string `env:"HEALTH_PATH" envDefault:"/health"`
	HealthMatcher      string `env:"HEALTH_MATCHER" envDefault:"200-399"`
	HealthInterval     int    `env:"HEALTH_INTERVAL" envDefault:"30"`
	HealthTimeout      int    `env:"HEALTH_TIMEOUT" envDefault:"5"`
	HealthyThreshold   int    `env:"HEALTHY_THRESHOLD" envDefault:"2"`
	UnhealthyThreshold int    `env:"UNHEALTHY_THRESHOLD" envDefault:"3"`

	DBName             string `env:"DB_NAME"`
	DBUsername         string `env:"DB_USERNAME"`
	DBPassword         string `env:"DB_PASSWORD"`
	DBInstanceClass    string `env:"DB_INSTANCE_CLASS" envDefault:"db.t3.micro"`
	DBAllocatedStorage int    `env:"DB_ALLOCATED_STORAGE" envDefault:"20"`
	DBEngineVersion    string `env:"DB_ENGINE_VERSION" envDefault:"16.3"`
	DBPort             int    `env:"DB_PORT" envDefault:"5432"`
	SkipFinalSnapshot  bool   `env:"DB_SKIP_FINAL_SNAPSHOT" envDefault:"true"`
	DeletionProtection bool   `env:"DB_DELETION_PROTECTION" envDefault:"false"`

	Parallelism int           `env:"RECONCILE_PARALLELISM" envDefault:"4"`
	WaitTimeout time.Duration `env:"RECONCILE_WAIT_TIMEOUT" envDefault:"20m"`
}

// Zones returns the configured zones, or the first two of the region.
func (s Stack) Zones() []string {
	if len(s.AvailabilityZones) >= 2 {
		return s.AvailabilityZones[:2]
	}
	return []string{s.Region + "a", s.Region + "b"}
}

// StateConfig points at the snapshot store.
type StateConfig struct {
	Driver string `env:"STATE_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"STATE_DSN" envDefault:"perimeter-state.db"`
}

// DeployConfig is the directory/branch/compose-file/service quadruple the
// deploy command operates on, plus probe and lock settings.
type DeployConfig struct {
	Dir          string        `env:"DEPLOY_DIR" envDefault:"/opt/app"`
	Branch       string        `env:"DEPLOY_BRANCH" envDefault:"main"`
	ComposeFile  string        `env:"DEPLOY_COMPOSE_FILE" envDefault:"docker-compose.yml"`
	Service      string        `env:"DEPLOY_SERVICE" envDefault:"app"`
	HealthURL    string        `env:"DEPLOY_HEALTH_URL" envDefault:"http://localhost:8000/health"`
	ProbeTimeout time.Duration `env:"DEPLOY_PROBE_TIMEOUT" envDefault:"10s"`
	LogLines     int           `env:"DEPLOY_LOG_LINES" envDefault:"50"`
	LockFile     string        `env:"DEPLOY_LOCK_FILE" envDefault:"/tmp/perimeter-deploy.lock"`
}

// SchemaConfig locates the application's migrations.
type SchemaConfig struct {
	Dir     string `env:"SCHEMA_DIR" envDefault:"migrations"`
	SSLMode string `env:"SCHEMA_SSLMODE" envDefault:"require"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Dev   bool   `env:"LOG_DEV" envDefault:"false"`
}

type MetricsConfig struct {
	Textfile string `env:"METRICS_TEXTFILE"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.AWS); err != nil {
		return nil, fmt.Errorf("parsing aws config: %w", err)
	}
	if err := env.Parse(&cfg.Stack); err != nil {
		return nil, fmt.Errorf("parsing stack config: %w", err)
	}
	if err := env.Parse(&cfg.State); err != nil {
		return nil, fmt.Errorf("parsing state config: %w", err)
	}
	if err := env.Parse(&cfg.Deploy); err != nil {
		return nil, fmt.Errorf("parsing deploy config: %w", err)
	}
	if err := env.Parse(&cfg.Schema); err != nil {
		return nil, fmt.Errorf("parsing schema config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}
	if err := env.Parse(&cfg.Metrics); err != nil {
		return nil, fmt.Errorf("parsing metrics config: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field rules. Required provisioning inputs are
// checked by the topology builder so that they surface as MissingInputError.
func (c *Config) Validate() error {
	if c.Stack.VPCCIDR != "" {
		prefix, err := netip.ParsePrefix(c.Stack.VPCCIDR)
		if err != nil {
			return fmt.Errorf("VPC_CIDR %q: %w", c.Stack.VPCCIDR, err)
		}
		if !prefix.Addr().Is4() || prefix.Bits() < 16 || prefix.Bits() > 20 {
			return fmt.Errorf("VPC_CIDR %q must be an IPv4 block between /16 and /20", c.Stack.VPCCIDR)
		}
	}
	for _, zone := range c.Stack.AvailabilityZones {
		if !strings.HasPrefix(zone, c.Stack.Region) {
			return fmt.Errorf("availability zone %s is not in region %s", zone, c.Stack.Region)
		}
	}
	if c.Stack.ServicePort < 1 || c.Stack.ServicePort > 65535 {
		return fmt.Errorf("SERVICE_PORT %d out of range", c.Stack.ServicePort)
	}
	if c.Stack.ListenerPort < 1 || c.Stack.ListenerPort > 65535 {
		return fmt.Errorf("LISTENER_PORT %d out of range", c.Stack.ListenerPort)
	}
	if c.Stack.HealthyThreshold < 2 || c.Stack.HealthyThreshold > 10 {
		return fmt.Errorf("HEALTHY_THRESHOLD must be between 2 and 10")
	}
	if c.Stack.UnhealthyThreshold < 2 || c.Stack.UnhealthyThreshold > 10 {
		return fmt.Errorf("UNHEALTHY_THRESHOLD must be between 2 and 10")
	}
	if c.Stack.HealthTimeout >= c.Stack.HealthInterval {
		return fmt.Errorf("HEALTH_TIMEOUT must be less than HEALTH_INTERVAL")
	}
	if c.Stack.Parallelism < 1 {
		return fmt.Errorf("RECONCILE_PARALLELISM must be at least 1")
	}
	switch c.State.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("STATE_DRIVER %q: want sqlite3, postgres or memory", c.State.Driver)
	}
	if c.Deploy.LogLines < 1 {
		return fmt.Errorf("DEPLOY_LOG_LINES must be positive")
	}
	return nil
}
