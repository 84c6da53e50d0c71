package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/metrics"
	"github.com/lisuiheng/xiaozhi-sink/pkg/interfaces"
	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
	"github.com/lisuiheng/xiaozhi-sink/protocols/frame"
	"github.com/lisuiheng/xiaozhi-sink/queue"
)

// OutputDevice 把合成的音频和转写事件按产生顺序发送给客户端
//
// ConsumeAudio/ConsumeTranscript 只做编码和入队, 从不写网络;
// 所有写操作都在唯一的发送循环goroutine中完成.
type OutputDevice struct {
	id      string
	config  Config
	conn    interfaces.Connection
	encoder audio.Encoder
	queue   *queue.Queue[queuedFrame]
	state   *lifecycle
	logger  *slog.Logger
	metrics *metrics.Metrics

	cancel      context.CancelFunc
	done        chan struct{}
	drained     chan struct{}
	doneOnce    sync.Once
	drainedOnce sync.Once
	terminated  atomic.Bool

	errMu sync.Mutex
	err   error
}

type queuedFrame struct {
	frame.Frame
	enqueuedAt time.Time
}

// Option 设备可选参数
type Option func(*OutputDevice)

// WithMetrics 记录Prometheus指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *OutputDevice) { d.metrics = m }
}

// WithEncoder 替换根据配置创建的编码器
func WithEncoder(enc audio.Encoder) Option {
	return func(d *OutputDevice) { d.encoder = enc }
}

// WithID 指定设备ID, 默认随机生成
func WithID(id string) Option {
	return func(d *OutputDevice) { d.id = id }
}

// NewOutputDevice 创建输出设备, 需要调用Start后才开始接收数据
func NewOutputDevice(conn interfaces.Connection, cfg Config, log *slog.Logger, opts ...Option) (*OutputDevice, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	d := &OutputDevice{
		id:      uuid.NewString(),
		config:  cfg,
		conn:    conn,
		state:   newLifecycle(),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.encoder == nil {
		enc, err := audio.NewEncoder(cfg.encoderConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create audio encoder: %w", err)
		}
		d.encoder = enc
	}

	d.logger = log.With("device_id", d.id)
	d.queue = queue.New(queue.Options[queuedFrame]{
		Capacity: cfg.QueueCapacity,
		Overflow: cfg.QueueOverflow,
		OnDrop: func(f queuedFrame) {
			d.metrics.Dropped(string(f.Type), metrics.DropOverflow, true)
		},
	})
	return d, nil
}

func (d *OutputDevice) ID() string { return d.id }

func (d *OutputDevice) State() State { return d.state.State() }

// Pending 队列中等待发送的帧数
func (d *OutputDevice) Pending() int { return d.queue.Len() }

// Start 启动发送循环, 只有第一次调用有效
//
// ctx 被取消等同于 Terminate.
func (d *OutputDevice) Start(ctx context.Context) bool {
	_, started := d.state.transition(startTransition, func(_, _ State) {
		loopCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.metrics.DeviceStarted()
		go d.run(loopCtx)
	})
	if !started {
		d.logger.Warn("Ignoring start, device is not idle", "state", d.State())
		return false
	}

	d.logger.Info("Output device started",
		"encoding", d.encoder.Encoding(),
		"sample_rate", d.encoder.SampleRate(),
		"queue_capacity", d.config.QueueCapacity)
	return true
}

// ConsumeAudio 编码一段PCM16单声道数据并入队
//
// 设备不在运行状态时静默丢弃. 编码失败返回 *audio.EncodingError,
// 该块不会入队, 也不影响其他块.
func (d *OutputDevice) ConsumeAudio(ctx context.Context, pcm []byte) error {
	if !d.State().Accepting() {
		d.metrics.Dropped(string(frame.TypeAudio), metrics.DropInactive, false)
		return nil
	}

	encoded, err := d.encoder.Encode(bytes.Clone(pcm))
	if err != nil {
		d.metrics.EncodingError(string(d.encoder.Encoding()))
		d.logger.Warn("Failed to encode audio chunk", "error", err, "size", len(pcm))
		return err
	}

	f, err := frame.FrameAudio(encoded)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, f)
}

// ConsumeTranscript 将转写事件入队, 接收/丢弃规则与 ConsumeAudio 相同
func (d *OutputDevice) ConsumeTranscript(ctx context.Context, event transcript.Event) error {
	if !d.State().Accepting() {
		d.metrics.Dropped(string(frame.TypeTranscript), metrics.DropInactive, false)
		return nil
	}

	f, err := frame.FrameTranscript(event)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, f)
}

func (d *OutputDevice) enqueue(ctx context.Context, f frame.Frame) error {
	err := d.queue.Enqueue(ctx, queuedFrame{Frame: f, enqueuedAt: time.Now()})
	switch {
	case err == nil:
		d.metrics.Enqueued(string(f.Type))
		return nil
	case errors.Is(err, queue.ErrClosed):
		// closed between the state check and the enqueue
		d.metrics.Dropped(string(f.Type), metrics.DropInactive, false)
		return nil
	case errors.Is(err, queue.ErrFull):
		d.metrics.Dropped(string(f.Type), metrics.DropOverflow, false)
		return fmt.Errorf("enqueue %s frame: %w", f.Type, err)
	default:
		return fmt.Errorf("enqueue %s frame: %w", f.Type, err)
	}
}

// MarkClosed 停止接收新的输入, 已入队的帧继续按顺序发送
//
// 队列发送完毕后发送循环退出, Drained() 被关闭.
func (d *OutputDevice) MarkClosed() {
	from, changed := d.state.transition(closeTransition, func(_, _ State) {
		d.queue.Close()
	})
	if !changed {
		return
	}
	if from == StateIdle {
		d.closeDrained()
		d.closeDone()
	}
	d.logger.Info("Output device marked closed", "pending", d.queue.Len())
}

// Terminate 立即停止发送循环并丢弃未发送的帧
//
// 正在发送的帧视为丢失. 返回时发送循环已经退出.
func (d *OutputDevice) Terminate() {
	var discarded []queuedFrame
	from, changed := d.state.transition(stopTransition, func(_, _ State) {
		d.terminated.Store(true)
		d.queue.Close()
		discarded = d.queue.Discard()
	})

	if changed {
		for _, f := range discarded {
			d.metrics.Dropped(string(f.Type), metrics.DropTerminated, true)
		}
		if from == StateIdle {
			d.closeDone()
		} else {
			d.cancel()
		}
		d.logger.Info("Output device terminated", "from", from, "discarded", len(discarded))
	}

	<-d.done
}

// Done 发送循环退出后关闭
func (d *OutputDevice) Done() <-chan struct{} { return d.done }

// Drained MarkClosed之后队列中所有帧都发送完毕时关闭
func (d *OutputDevice) Drained() <-chan struct{} { return d.drained }

// Err 返回导致发送循环停止的 *DeliveryError
func (d *OutputDevice) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// WaitDrained 等待 MarkClosed 之后的队列发送完毕
//
// 发送失败时返回 *DeliveryError, 被 Terminate 时返回 ErrTerminated.
func (d *OutputDevice) WaitDrained(ctx context.Context) error {
	select {
	case <-d.drained:
		return nil
	case <-d.done:
		select {
		case <-d.drained:
			return nil
		default:
		}
		if err := d.Err(); err != nil {
			return err
		}
		return ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *OutputDevice) closeDone() {
	d.doneOnce.Do(func() { close(d.done) })
}

func (d *OutputDevice) closeDrained() {
	d.drainedOnce.Do(func() { close(d.drained) })
}

func (d *OutputDevice) setErr(err error) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.err == nil {
		d.err = err
	}
}
