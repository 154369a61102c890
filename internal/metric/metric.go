package metric

import (
	"fmt"
	"strings"
)

// Name 指标名称（监控端使用的 item key）
type Name string

const (
	StationCode        Name = "station.code"
	SerialNumber       Name = "serial.number"
	InputVoltage       Name = "input.voltage"
	SystemTemp         Name = "system.temp"
	SatUsed            Name = "sat.used"
	Q330Serial         Name = "q330.serial"
	MainCurrent        Name = "main.current"
	ClockQuality       Name = "clock.quality"
	MediaSite1Occupied Name = "media.site1.space.occupied"
	MediaSite2Occupied Name = "media.site2.space.occupied"
)

// AllNames 全部指标，顺序即下发顺序
var AllNames = []Name{
	StationCode,
	SerialNumber,
	InputVoltage,
	SystemTemp,
	SatUsed,
	Q330Serial,
	MainCurrent,
	ClockQuality,
	MediaSite1Occupied,
	MediaSite2Occupied,
}

// Valid 是否属于已知指标集合
func (n Name) Valid() bool {
	for _, known := range AllNames {
		if n == known {
			return true
		}
	}
	return false
}

func (n Name) String() string {
	return string(n)
}

// ParseNames 将配置中的字符串解析为指标名，空列表表示全部指标
func ParseNames(values []string) ([]Name, error) {
	if len(values) == 0 {
		return append([]Name(nil), AllNames...), nil
	}

	seen := make(map[Name]bool, len(values))
	names := make([]Name, 0, len(values))
	for _, v := range values {
		name := Name(strings.TrimSpace(v))
		if !name.Valid() {
			return nil, fmt.Errorf("unknown metric name: %q", v)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Sample 单个待下发的指标值 (identity, name, value)
type Sample struct {
	Identity string `json:"identity"`
	Name     Name   `json:"name"`
	Value    string `json:"value"`
}
