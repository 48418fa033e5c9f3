package reconcile

import "fmt"

// trustPolicy lets service assume the role.
func trustPolicy(service string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {
        "Service": %q
      },
      "Action": "sts:AssumeRole"
    }
  ]
}
`, service)
}
