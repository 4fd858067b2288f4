package types

// ScannerState 扫描器状态
type ScannerState int32

const (
	ScannerIdle ScannerState = iota
	ScannerScanning
)

// String 返回状态的字符串表示
func (s ScannerState) String() string {
	if s == ScannerScanning {
		return "scanning"
	}
	return "idle"
}

// ProbeResponse 一次探测得到的节点
//
// ParentID 非空表示该节点只能经由 ParentID 对应的节点重定向访问。
type ProbeResponse struct {
	Attrs    Attributes
	ParentID string
	Source   string
}
