package service

// 通过 -ldflags "-X github.com/dushixiang/quanterra/pkg/agent/service.Version=..." 注入
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// GetVersion 返回版本号
func GetVersion() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
