package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrNoCredentials 错误：启用了实时推送但没有 Alpaca 凭据
var ErrNoCredentials = errors.New("alpaca credentials missing")
