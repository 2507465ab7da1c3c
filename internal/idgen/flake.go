// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"errors"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/sony/sonyflake"
)

var DefaultFlakeGenerator *SonyFlakeGenerator

func init() {
	var err error
	DefaultFlakeGenerator, err = NewFlakeGenerator()
	if err != nil {
		panic(err)
	}
}

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func NewFlakeGenerator() (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: machineID,
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

var interfaceAddrs = net.InterfaceAddrs

// machineID uses the low 16 bits of a private IPv4 address, as sonyflake
// does by default, and a random id on hosts without one.
func machineID() (uint16, error) {
	addrs, err := interfaceAddrs()
	if err == nil {
		if id, ok := machineIDFromAddrs(addrs); ok {
			return id, nil
		}
	}
	return uint16(rand.N(1 << 16)), nil
}

func machineIDFromAddrs(addrs []net.Addr) (uint16, bool) {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || !ip.IsPrivate() {
			continue
		}
		return uint16(ip[2])<<8 + uint16(ip[3]), true
	}
	return 0, false
}

// NextID falls back to a random id if the flake clock has run out.
func (sf *SonyFlakeGenerator) NextID() int64 {
	v, err := sf.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// InstanceID names a running process, e.g. "worker-3f9k2a1b0c", for the
// updater column of events it touches.
func (sf *SonyFlakeGenerator) InstanceID(role string) string {
	return role + "-" + strconv.FormatInt(sf.NextID(), 36)
}
