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
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gardenError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(gardenError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// wrapFields 为错误附加 key/value 形式的上下文信息。
func wrapFields(err error, kvs ...any) error {
	for i := 0; i+1 < len(kvs); i += 2 {
		err = errors.Wrapf(err, "%v=%v", kvs[i], kvs[i+1])
	}
	return err
}

// Auth related

func WrapErrAuthMissingCredentials(msg ...string) error {
	err := error(ErrAuthMissingCredentials)
	if len(msg) > 0 {
		err = errors.Wrap(err, msg[0])
	}
	return err
}

func WrapErrAuthInvalidSecret(playerName string) error {
	return wrapFields(error(ErrAuthInvalidSecret), "player", playerName)
}

func WrapErrAuthRejected(reason string) error {
	return errors.Wrap(error(ErrAuthRejected), reason)
}

func WrapErrAuthSecretNotConfigured(key string) error {
	return wrapFields(error(ErrAuthSecretNotConfigured), "key", key)
}

// Session directory related

func WrapErrSessionDuplicateID(sessionID string) error {
	return wrapFields(error(ErrSessionDuplicateID), "session", sessionID)
}

func WrapErrSessionNotFound(sessionID string) error {
	return wrapFields(error(ErrSessionNotFound), "session", sessionID)
}

func WrapErrSessionNameTaken(sessionID, playerName string) error {
	return wrapFields(error(ErrSessionNameTaken), "session", sessionID, "player", playerName)
}

func WrapErrSessionAlreadyJoined(sessionID string) error {
	return wrapFields(error(ErrSessionAlreadyJoined), "session", sessionID)
}

// Protocol related

func WrapErrProtocolMalformed(fmtStr string, args ...any) error {
	return errors.Wrapf(error(ErrProtocolMalformed), fmtStr, args...)
}

func WrapErrProtocolUnknownType(tag string) error {
	return wrapFields(error(ErrProtocolUnknownType), "tag", tag)
}

// Room related

func WrapErrRoomNotFound(roomID string) error {
	return wrapFields(error(ErrRoomNotFound), "room", roomID)
}

func WrapErrRoomDuplicateID(roomID string) error {
	return wrapFields(error(ErrRoomDuplicateID), "room", roomID)
}

func WrapErrRoomAlreadyJoined(roomID string) error {
	return wrapFields(error(ErrRoomAlreadyJoined), "room", roomID)
}

// Connection related

func WrapErrConnClosed(player string) error {
	return wrapFields(error(ErrConnClosed), "player", player)
}

func WrapErrConnSendQueueFull(player string) error {
	return wrapFields(error(ErrConnSendQueueFull), "player", player)
}

func WrapErrConnWriteFailed(player string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(errors.Wrap(error(ErrConnWriteFailed), err.Error()), "player=%v", player)
}

// IO related

func WrapErrIoKeyNotFound(key string) error {
	return wrapFields(error(ErrIoKeyNotFound), "key", key)
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(errors.Wrap(error(ErrIoFailed), err.Error()), "key=%v", key)
}

// Parameter related

func WrapErrParameterInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(error(ErrParameterInvalid), fmtStr, args...)
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := errors.Wrapf(error(ErrParameterInvalid), "expected=%v, actual=%v", expected, actual)
	if len(msg) > 0 {
		err = errors.Wrap(err, msg[0])
	}
	return err
}

// Message 返回整条错误链中最外层的可读信息。
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Ok 报告错误码是否表示成功。
func Ok(code int32) bool {
	return code == 0
}

// CheckErr 对外部返回的 (code, msg) 进行还原。
func CheckErr(code int32, msg string) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("code=%d: %s", code, msg)
}
