package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/rediswrapper/pkg/batch"
	"github.com/nimburion/rediswrapper/pkg/observability/metrics"
	"github.com/nimburion/rediswrapper/pkg/observability/tracing"
)

// NewBatch implements batch.Driver with a MULTI/EXEC transaction pipeline.
func (a *RedisAdapter) NewBatch() batch.RawBatch {
	return &txBatch{
		pipe:    a.client.TxPipeline(),
		adapter: a,
	}
}

// txBatch queues commands on a transaction pipeline. go-redis sends nothing
// until Exec, so queueing uses a background context.
type txBatch struct {
	pipe    redis.Pipeliner
	adapter *RedisAdapter
}

func (b *txBatch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(context.Background(), key, value, ttl)
}

func (b *txBatch) Get(key string) {
	b.pipe.Get(context.Background(), key)
}

func (b *txBatch) Del(keys ...string) {
	b.pipe.Del(context.Background(), keys...)
}

func (b *txBatch) ExecRaw(ctx context.Context) ([]batch.Outcome, error) {
	ctx, span := tracing.StartStoreSpan(ctx, tracing.SpanOperationBatch,
		b.adapter.spanOptions(tracing.WithCommandCount(b.pipe.Len()))...)
	start := time.Now()

	cmds, err := b.pipe.Exec(ctx)
	outcomes, err := outcomesOf(cmds, err)

	result := metrics.BatchResultOK
	switch {
	case err != nil:
		result = metrics.BatchResultBatchError
	case hasCommandError(outcomes):
		result = metrics.BatchResultCommandError
	}
	b.adapter.metrics.RecordBatchExec(result, time.Since(start))
	tracing.End(span, err)
	return outcomes, err
}

// outcomesOf splits the result of a transaction pipeline into per-command
// outcomes or a whole-batch failure. go-redis reports the first command error
// as the Exec error, so a reply error only counts as a batch failure when no
// command carries it.
func outcomesOf(cmds []redis.Cmder, execErr error) ([]batch.Outcome, error) {
	if execErr != nil && isBatchFault(execErr) {
		return nil, execErr
	}
	if abortErr := execAbortOf(cmds); abortErr != nil {
		return nil, abortErr
	}

	outcomes := make([]batch.Outcome, len(cmds))
	for i, cmd := range cmds {
		outcomes[i] = outcomeOf(cmd)
	}

	if execErr != nil && !errors.Is(execErr, redis.Nil) && !hasCommandError(outcomes) {
		return nil, execErr
	}
	return outcomes, nil
}

// isBatchFault reports whether err means the transaction as a whole failed:
// transport and context errors, an aborted EXEC or a failed WATCH.
func isBatchFault(err error) bool {
	if errors.Is(err, redis.TxFailedErr) {
		return true
	}
	var replyErr redis.Error
	if !errors.As(err, &replyErr) {
		return true
	}
	return isExecAbort(err)
}

// execAbortOf returns the EXECABORT reply carried by any command. A command
// rejected while queueing aborts the whole transaction even when the first
// error go-redis reports is that command's own queue-time error.
func execAbortOf(cmds []redis.Cmder) error {
	for _, cmd := range cmds {
		if err := cmd.Err(); err != nil && isExecAbort(err) {
			return err
		}
	}
	return nil
}

func isExecAbort(err error) bool {
	var replyErr redis.Error
	return errors.As(err, &replyErr) && strings.HasPrefix(replyErr.Error(), "EXECABORT")
}

func outcomeOf(cmd redis.Cmder) batch.Outcome {
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return batch.Outcome{}
		}
		return batch.Outcome{Err: err}
	}
	return batch.Outcome{Value: valueOf(cmd)}
}

func valueOf(cmd redis.Cmder) any {
	switch c := cmd.(type) {
	case *redis.StatusCmd:
		return c.Val()
	case *redis.StringCmd:
		return c.Val()
	case *redis.IntCmd:
		return c.Val()
	case *redis.BoolCmd:
		return c.Val()
	case *redis.Cmd:
		return c.Val()
	default:
		return nil
	}
}

func hasCommandError(outcomes []batch.Outcome) bool {
	for _, o := range outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}
