package metric

import (
	"strconv"
)

// Record 单台台站一次采集得到的指标
// 字段为 nil 表示页面上没有该字段，下游不会收到占位值
type Record struct {
	StationCode        *string
	SerialNumber       *string
	InputVoltage       *float64 // 伏特
	SystemTemp         *int     // 摄氏度
	SatUsed            *int
	Q330Serial         *string
	MainCurrent        *int     // 毫安
	ClockQuality       *int     // 百分比 0-100
	MediaSite1Occupied *float64 // 百分比 0-100
	MediaSite2Occupied *float64 // 百分比 0-100
}

// Has 指标是否存在
func (r Record) Has(name Name) bool {
	_, ok := r.Get(name)
	return ok
}

// Get 以下发格式返回指标值
func (r Record) Get(name Name) (string, bool) {
	switch name {
	case StationCode:
		return stringValue(r.StationCode)
	case SerialNumber:
		return stringValue(r.SerialNumber)
	case InputVoltage:
		return floatValue(r.InputVoltage)
	case SystemTemp:
		return intValue(r.SystemTemp)
	case SatUsed:
		return intValue(r.SatUsed)
	case Q330Serial:
		return stringValue(r.Q330Serial)
	case MainCurrent:
		return intValue(r.MainCurrent)
	case ClockQuality:
		return intValue(r.ClockQuality)
	case MediaSite1Occupied:
		return floatValue(r.MediaSite1Occupied)
	case MediaSite2Occupied:
		return floatValue(r.MediaSite2Occupied)
	}
	return "", false
}

// Filter 只保留指定的指标
func (r Record) Filter(names []Name) Record {
	keep := make(map[Name]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}

	var out Record
	if keep[StationCode] {
		out.StationCode = r.StationCode
	}
	if keep[SerialNumber] {
		out.SerialNumber = r.SerialNumber
	}
	if keep[InputVoltage] {
		out.InputVoltage = r.InputVoltage
	}
	if keep[SystemTemp] {
		out.SystemTemp = r.SystemTemp
	}
	if keep[SatUsed] {
		out.SatUsed = r.SatUsed
	}
	if keep[Q330Serial] {
		out.Q330Serial = r.Q330Serial
	}
	if keep[MainCurrent] {
		out.MainCurrent = r.MainCurrent
	}
	if keep[ClockQuality] {
		out.ClockQuality = r.ClockQuality
	}
	if keep[MediaSite1Occupied] {
		out.MediaSite1Occupied = r.MediaSite1Occupied
	}
	if keep[MediaSite2Occupied] {
		out.MediaSite2Occupied = r.MediaSite2Occupied
	}
	return out
}

// Names 返回记录中存在的指标名（按 AllNames 顺序）
func (r Record) Names() []Name {
	var names []Name
	for _, n := range AllNames {
		if r.Has(n) {
			names = append(names, n)
		}
	}
	return names
}

// Len 存在的指标个数
func (r Record) Len() int {
	return len(r.Names())
}

// IsEmpty 是否没有任何指标
func (r Record) IsEmpty() bool {
	return r.Len() == 0
}

// Map 转换为 name -> value，便于日志和测试
func (r Record) Map() map[Name]string {
	m := make(map[Name]string)
	for _, n := range AllNames {
		if v, ok := r.Get(n); ok {
			m[n] = v
		}
	}
	return m
}

// Samples 展开为指定 identity 的指标列表
func (r Record) Samples(identity string) []Sample {
	var samples []Sample
	for _, n := range AllNames {
		if v, ok := r.Get(n); ok {
			samples = append(samples, Sample{Identity: identity, Name: n, Value: v})
		}
	}
	return samples
}

func stringValue(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}

func intValue(v *int) (string, bool) {
	if v == nil {
		return "", false
	}
	return strconv.Itoa(*v), true
}

func floatValue(v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	return strconv.FormatFloat(*v, 'f', -1, 64), true
}
