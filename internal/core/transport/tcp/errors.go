package tcp

import "errors"

// ErrMissingAddress 属性中缺少地址
var ErrMissingAddress = errors.New("missing or invalid address attributes")
