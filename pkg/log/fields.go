package log

import "go.uber.org/zap"

const (
	// FieldNameModule 模块名字段。
	FieldNameModule = "module"
	// FieldNameComponent 组件名字段。
	FieldNameComponent = "component"
)

// FieldModule 返回模块名日志字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回组件名日志字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}
