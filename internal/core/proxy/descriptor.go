package proxy

import (
	"reflect"
	"sort"
	"sync"
)

// ============================================================================
//                              描述符
// ============================================================================

// Method 一个方法的调用方式
type Method struct {
	Name string

	// Async 方法以回调完成，需要在调度 goroutine 上调用
	Async bool

	// CallbackIndex 回调参数的位置
	CallbackIndex int
}

// Async 声明以回调完成的方法
func Async(name string, callbackIndex int) Method {
	return Method{Name: name, Async: true, CallbackIndex: callbackIndex}
}

// Sync 声明在调用方 goroutine 上直接执行的方法
func Sync(name string) Method {
	return Method{Name: name}
}

// Descriptor 服务接口的方法表，构造后不可变
type Descriptor struct {
	service string
	methods map[string]Method
}

// Describe 创建描述符
func Describe(service string, methods ...Method) *Descriptor {
	d := &Descriptor{service: service, methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		d.methods[m.Name] = m
	}
	return d
}

// Service 服务名
func (d *Descriptor) Service() string { return d.service }

// Method 查找方法
func (d *Descriptor) Method(name string) (Method, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// Methods 按名称排序的方法列表
func (d *Descriptor) Methods() []Method {
	out := make([]Method, 0, len(d.methods))
	for _, m := range d.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ============================================================================
//                              Cache
// ============================================================================

// Cache 以接口类型为键的描述符缓存
//
// 并发写入同一类型时只有第一个生效，条目从不淘汰。
type Cache struct {
	m sync.Map
}

// Store 写入描述符并返回实际生效的那个
func (c *Cache) Store(t reflect.Type, d *Descriptor) *Descriptor {
	actual, _ := c.m.LoadOrStore(t, d)
	return actual.(*Descriptor)
}

// Load 读取描述符
func (c *Cache) Load(t reflect.Type) (*Descriptor, bool) {
	v, ok := c.m.Load(t)
	if !ok {
		return nil, false
	}
	return v.(*Descriptor), true
}

var descriptors Cache

// Register 为接口类型 T 注册描述符，返回实际生效的描述符
func Register[T any](d *Descriptor) *Descriptor {
	return descriptors.Store(typeOf[T](), d)
}

// Lookup 查找接口类型 T 的描述符
func Lookup[T any]() (*Descriptor, bool) {
	return descriptors.Load(typeOf[T]())
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
