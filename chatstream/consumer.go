package chatstream

import (
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// flushEvery 每处理多少个 fragment 就把批次计数器刷写到配额账本一次。
const flushEvery = 10

// Fragment 流式响应的一个增量单元，携带可选的推理增量和回答增量。
type Fragment struct {
	ReasoningDelta string // delta.reasoning_content
	AnswerDelta    string // delta.content
}

// FragmentSource 产出有限的 Fragment 序列。流正常结束时 Next 返回 io.EOF。
type FragmentSource interface {
	Next() (Fragment, error)
}

// UsageSink 接收批量累计的 usage unit。由 storage.QuotaStore 实现。
type UsageSink interface {
	AddUsage(key string, delta int64) error
}

// Consumer 按序消费一条流式模型响应：把推理阶段和回答阶段分开累积，
// 同时对看到的每个字符做 usage unit 计费，每 10 个 fragment 批量刷写
// 一次配额账本，流结束后对剩余未刷写的计数做最后一次刷写。
//
// 阶段切换是单向的：第一个携带非空回答增量的 fragment 永久结束推理阶段。
type Consumer struct {
	sink UsageSink
	key  string // 计费的 API 密钥
	log  *logrus.Logger

	// OnFragment 可选回调，每处理完一个 fragment 调用一次，
	// answering 表示当前是否已进入回答阶段。用于向浏览器增量推送。
	OnFragment func(f Fragment, answering bool)
}

// NewConsumer 创建一个流消费者。
func NewConsumer(sink UsageSink, key string, log *logrus.Logger) *Consumer {
	return &Consumer{sink: sink, key: key, log: log}
}

// Consume 阻塞消费 src 直到序列结束或出错，返回累积的推理文本和回答文本。
// 上游中途出错时返回该错误；尚未刷写的批次计数随之丢弃，已刷写的
// usage unit 不回滚。
func (c *Consumer) Consume(src FragmentSource) (reasoning, answer string, err error) {
	var reasoningBuf, answerBuf strings.Builder
	var batch int64
	thinking := true // 推理阶段标志，只会从 true 翻转到 false 一次
	fragmentNum := 0

	for {
		frag, nextErr := src.Next()
		if nextErr != nil {
			if errors.Is(nextErr, io.EOF) {
				break
			}
			return reasoningBuf.String(), answerBuf.String(), nextErr
		}
		fragmentNum++

		if thinking {
			reasoningBuf.WriteString(frag.ReasoningDelta)
			if frag.AnswerDelta != "" {
				thinking = false
				if c.log != nil {
					c.log.Debugf("流消费: 第 %d 个 fragment 携带回答内容，推理阶段结束。", fragmentNum)
				}
			}
		}
		answerBuf.WriteString(frag.AnswerDelta)

		batch += UnitCost(frag.ReasoningDelta) + UnitCost(frag.AnswerDelta)

		// 周期性刷写不看计数是否为零，节奏固定。
		if fragmentNum%flushEvery == 0 {
			c.flush(&batch)
		}

		if c.OnFragment != nil {
			c.OnFragment(frag, !thinking)
		}
	}

	// 流结束，刷写剩余未入账的计数。
	if batch > 0 {
		c.flush(&batch)
	}
	return reasoningBuf.String(), answerBuf.String(), nil
}

// flush 把当前批次计数写入配额账本并清零。
// 写入失败只记录日志：这部分 usage 会丢失，属于记录在案的缺口。
func (c *Consumer) flush(batch *int64) {
	if err := c.sink.AddUsage(c.key, *batch); err != nil && c.log != nil {
		c.log.Warnf("流消费: 刷写 %d units 到配额账本失败: %v", *batch, err)
	}
	*batch = 0
}
