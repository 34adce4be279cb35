package session

import (
	"context"
	"net"
	"sync"

	"github.com/lk2023060901/tabletop-garden-go/internal/json"
	"github.com/lk2023060901/tabletop-garden-go/internal/network/wire"
	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

// RecordingSession 是不依赖网络的内存 Session 实现，
// 记录所有 Send 调用的消息，供各层单元测试断言使用。
type RecordingSession struct {
	id   uint64
	name string

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sent []*wire.Envelope

	// failSend 为 true 时 Send 返回队列满错误，用于模拟慢消费者。
	failSend bool
}

var _ Session = (*RecordingSession)(nil)

func NewRecordingSession(id uint64, name string) *RecordingSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &RecordingSession{
		id:     id,
		name:   name,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *RecordingSession) ID() uint64               { return s.id }
func (s *RecordingSession) Name() string             { return s.name }
func (s *RecordingSession) Context() context.Context { return s.ctx }
func (s *RecordingSession) RemoteAddr() net.Addr     { return nil }

func (s *RecordingSession) Send(tag string, msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSend {
		return merr.WrapErrConnSendQueueFull(s.name)
	}
	if s.ctx.Err() != nil {
		return merr.WrapErrConnClosed(s.name)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, &wire.Envelope{Tag: tag, Payload: payload})
	return nil
}

func (s *RecordingSession) Recv() (*wire.Envelope, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func (s *RecordingSession) Close() error {
	s.cancel()
	return nil
}

// FailNextSends 让后续所有 Send 调用失败。
func (s *RecordingSession) FailNextSends() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSend = true
}

// Sent 返回已记录的全部出站消息。
func (s *RecordingSession) Sent() []*wire.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*wire.Envelope, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentTags 返回已记录消息的 tag 序列。
func (s *RecordingSession) SentTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := make([]string, 0, len(s.sent))
	for _, env := range s.sent {
		tags = append(tags, env.Tag)
	}
	return tags
}

// Closed 返回会话是否已被关闭。
func (s *RecordingSession) Closed() bool {
	return s.ctx.Err() != nil
}
