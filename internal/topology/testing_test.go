package topology

import "github.com/eleven-am/perimeter/internal/config"

func testStack() config.Stack {
	return config.Stack{
		Project:            "emit",
		Region:             "us-east-1",
		VPCCIDR:            "10.0.0.0/16",
		InstanceType:       "t3.micro",
		ImageParameter:     "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64",
		ServicePort:        8000,
		ListenerPort:       80,
		HealthPath:         "/health",
		HealthMatcher:      "200-399",
		HealthInterval:     30,
		HealthTimeout:      5,
		HealthyThreshold:   2,
		UnhealthyThreshold: 3,
		DBName:             "emit",
		DBUsername:         "emit",
		DBPassword:         "s3cret",
		DBInstanceClass:    "db.t3.micro",
		DBAllocatedStorage: 20,
		DBEngineVersion:    "16.3",
		DBPort:             5432,
		Parallelism:        4,
	}
}
