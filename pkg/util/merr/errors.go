// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Auth related（握手阶段，连接尚未被准入）
	ErrAuthMissingCredentials  = newGardenError("missing network secret or player name header", 1, false)
	ErrAuthInvalidSecret       = newGardenError("network secret mismatch", 2, false)
	ErrAuthRejected            = newGardenError("handshake rejected", 3, false)
	ErrAuthSecretNotConfigured = newGardenError("network secret not configured in key-value store", 4, false)

	// Session directory related（以类型化响应返回给请求方，不跨锁传播）
	ErrSessionDuplicateID   = newGardenError("session with id already exists", 100, false)
	ErrSessionNotFound      = newGardenError("session not found", 101, false)
	ErrSessionNameTaken     = newGardenError("player name already taken", 102, false)
	ErrSessionAlreadyJoined = newGardenError("connection already associated with a session", 103, false)
	ErrSessionNotJoined     = newGardenError("connection not associated with any session", 104, false)

	// Protocol related（仅丢弃当前帧，不关闭连接）
	ErrProtocolMalformed   = newGardenError("malformed frame", 200, false)
	ErrProtocolUnknownType = newGardenError("unknown envelope type", 201, false)

	// Room related
	ErrRoomNotFound      = newGardenError("room not found", 300, false)
	ErrRoomDuplicateID   = newGardenError("room with id already exists", 301, false)
	ErrRoomAlreadyJoined = newGardenError("connection already associated with a room", 302, false)

	// Transport related（对单条连接生效，触发隐式离开）
	ErrConnClosed        = newGardenError("connection closed", 400, false)
	ErrConnSendQueueFull = newGardenError("connection send queue full", 401, true)
	ErrConnWriteFailed   = newGardenError("connection write failed", 402, false)

	// IO related
	ErrIoKeyNotFound = newGardenError("key not found", 500, false)
	ErrIoFailed      = newGardenError("IO failed", 501, false)

	// Parameter related
	ErrParameterInvalid = newGardenError("invalid parameter", 600, false)

	// never allow programmer using this, keep only for converting unknown error to gardenError
	errUnexpected = newGardenError("unexpected error", 900, false)
)

type gardenError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newGardenError(msg string, code int32, retriable bool) gardenError {
	return gardenError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e gardenError) code() int32 {
	return e.errCode
}

func (e gardenError) Error() string {
	return e.msg
}

func (e gardenError) Detail() string {
	return e.detail
}

func (e gardenError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gardenError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 将多个错误合并为一个；nil 会被过滤掉，全为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return multiErrors{errs: errs}
}
