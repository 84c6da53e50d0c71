package core

import (
	"context"
	"errors"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/metrics"
	"github.com/lisuiheng/xiaozhi-sink/queue"
)

// run 发送循环: 按FIFO顺序取出帧并写入连接, 直到队列关闭且发完、
// ctx被取消或写失败
func (d *OutputDevice) run(ctx context.Context) {
	defer d.closeDone()
	defer d.metrics.DeviceStopped()
	defer d.cancel()

	d.logger.Debug("Starting sender loop")
	defer d.logger.Debug("Sender loop stopped")

	for {
		qf, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) && !d.terminated.Load() {
				d.logger.Info("Output device drained")
				d.stop()
				d.closeDrained()
				return
			}
			d.stop()
			return
		}

		if ctx.Err() != nil {
			d.metrics.Dropped(string(qf.Type), metrics.DropTerminated, true)
			d.stop()
			return
		}

		if err := d.send(ctx, qf); err != nil {
			if ctx.Err() != nil {
				d.metrics.Dropped(string(qf.Type), metrics.DropTerminated, true)
				d.stop()
				return
			}

			derr := &DeliveryError{FrameType: qf.Type, Err: err}
			d.setErr(derr)
			d.metrics.DeliveryError()
			d.metrics.Dropped(string(qf.Type), metrics.DropDeliveryFailed, true)
			d.logger.Error("Failed to deliver frame, stopping sender loop", "error", err, "type", qf.Type)
			d.stop()
			return
		}

		d.metrics.Sent(string(qf.Type), time.Since(qf.enqueuedAt))
	}
}

func (d *OutputDevice) send(ctx context.Context, qf queuedFrame) error {
	if d.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.SendTimeout)
		defer cancel()
	}
	return d.conn.Send(ctx, qf.Text)
}

// stop 发送循环退出时进入终止状态, 丢弃剩余的帧
func (d *OutputDevice) stop() {
	d.state.transition(stopTransition, func(_, _ State) {
		d.queue.Close()
	})
	discarded := d.queue.Discard()
	for _, f := range discarded {
		d.metrics.Dropped(string(f.Type), metrics.DropTerminated, true)
	}
	if len(discarded) > 0 {
		d.logger.Warn("Discarded unsent frames", "count", len(discarded))
	}
}
