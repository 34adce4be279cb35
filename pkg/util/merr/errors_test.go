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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrSessionNotFound("ABC123")
	errors.Wrap(err, "failed to join session")
	s.ErrorIs(err, ErrSessionNotFound)
	s.Equal(Code(ErrSessionNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newGardenError("new error", ErrSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrSessionNotFound))
}

func (s *ErrSuite) TestWrap() {
	// Auth 相关错误。
	s.ErrorIs(WrapErrAuthMissingCredentials(), ErrAuthMissingCredentials)
	s.ErrorIs(WrapErrAuthInvalidSecret("Alice"), ErrAuthInvalidSecret)
	s.ErrorIs(WrapErrAuthRejected("empty player name"), ErrAuthRejected)

	// Session directory 相关错误。
	s.ErrorIs(WrapErrSessionDuplicateID("ABC123"), ErrSessionDuplicateID)
	s.ErrorIs(WrapErrSessionNotFound("ABC123"), ErrSessionNotFound)
	s.ErrorIs(WrapErrSessionNameTaken("ABC123", "Alice"), ErrSessionNameTaken)
	s.ErrorIs(WrapErrSessionAlreadyJoined("ABC123"), ErrSessionAlreadyJoined)

	// Protocol 相关错误。
	s.ErrorIs(WrapErrProtocolMalformed("missing delimiter"), ErrProtocolMalformed)
	s.ErrorIs(WrapErrProtocolUnknownType("bogusTag"), ErrProtocolUnknownType)

	// Room 相关错误。
	s.ErrorIs(WrapErrRoomNotFound("lobby-1"), ErrRoomNotFound)
	s.ErrorIs(WrapErrRoomDuplicateID("lobby-1"), ErrRoomDuplicateID)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoKeyNotFound("Network secret"), ErrIoKeyNotFound)
	s.ErrorIs(WrapErrIoFailed("Network secret", errors.New("mock")), ErrIoFailed)

	// Parameter 相关错误。
	s.ErrorIs(WrapErrParameterInvalid(8, 1), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("open question, %s", "né"), ErrParameterInvalid)
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)

	err = Combine(err, nil)
	s.NotNil(err)

	s.NoError(Combine(nil, nil))
}

func (s *ErrSuite) TestCombineOnlyNil() {
	s.NoError(Combine(nil, nil))
}

func (s *ErrSuite) TestIsRetryable() {
	s.True(IsRetryableErr(ErrConnSendQueueFull))
	s.False(IsRetryableErr(ErrSessionNotFound))
	s.False(IsRetryableErr(errors.New("mock")))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
