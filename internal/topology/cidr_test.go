package topology

import "testing"

func TestCarveSubnet(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		newBits int
		netNum  int
		want    string
		wantErr bool
	}{
		{name: "public a", cidr: "10.0.0.0/16", newBits: 8, netNum: 1, want: "10.0.1.0/24"},
		{name: "private b", cidr: "10.0.0.0/16", newBits: 8, netNum: 11, want: "10.0.11.0/24"},
		{name: "unmasked input", cidr: "10.0.7.9/16", newBits: 8, netNum: 2, want: "10.0.2.0/24"},
		{name: "from a /20", cidr: "172.16.16.0/20", newBits: 4, netNum: 10, want: "172.16.26.0/24"},
		{name: "high bits", cidr: "10.0.0.0/8", newBits: 8, netNum: 255, want: "10.255.0.0/16"},
		{name: "number too large", cidr: "10.0.0.0/20", newBits: 4, netNum: 16, wantErr: true},
		{name: "too many bits", cidr: "10.0.0.0/28", newBits: 8, netNum: 0, wantErr: true},
		{name: "no bits", cidr: "10.0.0.0/16", newBits: 0, netNum: 0, wantErr: true},
		{name: "ipv6", cidr: "fd00::/56", newBits: 8, netNum: 1, wantErr: true},
		{name: "garbage", cidr: "nope", newBits: 8, netNum: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CarveSubnet(tt.cidr, tt.newBits, tt.netNum)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CarveSubnet() = %s, want %s", got, tt.want)
			}
		})
	}
}
