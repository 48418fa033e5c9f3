package topology

import (
	"fmt"
	"net/netip"
)

// CarveSubnet extends cidr's prefix by newBits and returns the netNum-th
// block of that size.
func CarveSubnet(cidr string, newBits, netNum int) (string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return "", fmt.Errorf("carve subnet from %q: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return "", fmt.Errorf("carve subnet from %q: only IPv4 is supported", cidr)
	}
	length := prefix.Bits() + newBits
	if newBits < 1 || length > 32 {
		return "", fmt.Errorf("carve subnet from %q: cannot extend by %d bits", cidr, newBits)
	}
	if netNum < 0 || netNum >= 1<<newBits {
		return "", fmt.Errorf("carve subnet from %q: network number %d does not fit in %d bits", cidr, netNum, newBits)
	}

	base := prefix.Masked().Addr().As4()
	value := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	value |= uint32(netNum) << (32 - length)
	addr := netip.AddrFrom4([4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)})
	return netip.PrefixFrom(addr, length).String(), nil
}
