package interfaces

// ServiceProvider 外部注册的服务提供者
//
// 核心只关心注册顺序和以下能力。两个方法都在调度 goroutine 上调用。
type ServiceProvider interface {
	Name() string

	// LocalServices 为新通道提供本地服务
	LocalServices(ch Channel) []LocalService

	// ServiceProxy 为通道上的远程服务构造代理，不提供时返回 nil
	ServiceProxy(ch Channel, service string) any
}
