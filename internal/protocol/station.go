package protocol

// Device 资产系统中登记的台站
type Device struct {
	Address  string `json:"address"`  // 网络地址，仅在本轮采集中有效
	Identity string `json:"identity"` // 稳定的台站标识
}

// SenderItem Zabbix trapper 数据项
type SenderItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock,omitempty"`
}

// SenderRequest Zabbix trapper 请求
type SenderRequest struct {
	Request string       `json:"request"`
	Data    []SenderItem `json:"data"`
	Clock   int64        `json:"clock,omitempty"`
}

// SenderResponse Zabbix trapper 响应
type SenderResponse struct {
	Response string `json:"response"`
	Info     string `json:"info"`
}
