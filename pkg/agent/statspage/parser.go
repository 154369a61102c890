package statspage

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dushixiang/quanterra/internal/metric"
)

// float64 可精确表示的最大小数位数
const maxOccupiedPlaces = 15

// 每个指标一条正则，作用于整页文本，取第一个匹配
var (
	stationCodePattern  = regexp.MustCompile(`Station EC-(\w+)`)
	serialNumberPattern = regexp.MustCompile(`Tag (\d+) - Station EC-\w+`)
	inputVoltagePattern = regexp.MustCompile(`Input Voltage: (\d+(?:\.\d+)?)V`)
	systemTempPattern   = regexp.MustCompile(`System Temperature: (-?\d+)C`)
	satUsedPattern      = regexp.MustCompile(`Sat\. Used: (\d+)`)
	q330SerialPattern   = regexp.MustCompile(`Q330 Serial Number: ([^\r\n<]+)`)
	mainCurrentPattern  = regexp.MustCompile(`Main Current: (\d+)(?i:ma)`)
	clockQualityPattern = regexp.MustCompile(`Clock Quality: (\d+)%`)
	mediaSite1Pattern   = regexp.MustCompile(`MEDIA site 1\b[^\r\n]*?free=(\d+(?:\.\d+)?)%`)
	mediaSite2Pattern   = regexp.MustCompile(`MEDIA site 2\b[^\r\n]*?free=(\d+(?:\.\d+)?)%`)
)

// Parser 台站状态页解析器
type Parser struct{}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 从状态页文本解析指标
// 找不到或无法解析的字段直接省略，不会返回错误
func (p *Parser) Parse(raw string) metric.Record {
	var r metric.Record

	if v, ok := find(stationCodePattern, raw); ok {
		r.StationCode = &v
	}
	if v, ok := find(serialNumberPattern, raw); ok {
		r.SerialNumber = &v
	}
	if v, ok := find(inputVoltagePattern, raw); ok {
		r.InputVoltage = parseFloat(v)
	}
	if v, ok := find(systemTempPattern, raw); ok {
		r.SystemTemp = parseInt(v)
	}
	if v, ok := find(satUsedPattern, raw); ok {
		r.SatUsed = parseInt(v)
	}
	if v, ok := find(q330SerialPattern, raw); ok {
		if v = strings.TrimSpace(v); v != "" {
			r.Q330Serial = &v
		}
	}
	if v, ok := find(mainCurrentPattern, raw); ok {
		r.MainCurrent = parseInt(v)
	}
	if v, ok := find(clockQualityPattern, raw); ok {
		if q := parseInt(v); q != nil && *q <= 100 {
			r.ClockQuality = q
		}
	}
	if v, ok := find(mediaSite1Pattern, raw); ok {
		r.MediaSite1Occupied = occupied(v)
	}
	if v, ok := find(mediaSite2Pattern, raw); ok {
		r.MediaSite2Occupied = occupied(v)
	}

	return r
}

func find(re *regexp.Regexp, raw string) (string, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func parseInt(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// occupied 由剩余空间百分比换算已用百分比（100 - free），保留与输入相同的小数位
func occupied(free string) *float64 {
	f := parseFloat(free)
	if f == nil || *f < 0 || *f > 100 {
		return nil
	}

	places := 0
	if i := strings.IndexByte(free, '.'); i >= 0 {
		places = min(len(free)-i-1, maxOccupiedPlaces)
	}
	scale := math.Pow(10, float64(places))
	v := math.Round((100-*f)*scale) / scale
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return nil
	}
	return &v
}
