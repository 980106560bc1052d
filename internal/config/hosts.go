package config

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"
)

// LoadHosts reads the host list file: one hostname or IP address per line,
// returned in file order. Blank lines and lines starting with # are
// skipped. A line in CIDR notation expands to its usable IPv4 addresses in
// address order. Duplicates are kept; every listed entry gets processed.
func LoadHosts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hosts file: %w", err)
	}
	return ParseHosts(data)
}

// ParseHosts extracts host entries from raw hosts-file content.
func ParseHosts(data []byte) ([]string, error) {
	var hosts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "/") {
			expanded, err := expandCIDR(line)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, expanded...)
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, nil
}

// expandCIDR enumerates the usable IPv4 addresses of a CIDR line. For /30
// and larger the network and broadcast addresses are skipped; /31 keeps
// both (RFC 3021) and /32 is a single host.
func expandCIDR(cidr string) ([]string, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid host entry %q: %w", cidr, err)
	}
	ip := network.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("host entry %q: only IPv4 ranges are supported", cidr)
	}

	ones, bits := network.Mask.Size()
	if ones == 32 {
		return []string{ip.String()}, nil
	}

	start := binary.BigEndian.Uint32(ip)
	size := uint32(1) << uint(bits-ones)

	first, last := uint32(1), size-1 // skip network and broadcast
	if ones == 31 {
		first, last = 0, size
	}

	var hosts []string
	for i := first; i < last; i++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, start+i)
		hosts = append(hosts, addr.String())
	}
	return hosts, nil
}

const hostsTemplate = `# fleetpass host list
# One hostname or IP address per line. Lines starting with # are ignored.
# CIDR ranges expand to every usable address in the range.
#
# web-01.example.com
# 10.0.4.17
# 10.0.8.0/28
`

// WriteTemplate creates a commented starter hosts file at path.
// It refuses to overwrite an existing file.
func WriteTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create hosts file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(hostsTemplate); err != nil {
		return fmt.Errorf("write hosts file: %w", err)
	}
	return nil
}
