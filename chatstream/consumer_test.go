package chatstream

import (
	"errors"
	"io"
	"testing"
)

// sliceSource 按序产出固定的 Fragment 序列，可选在耗尽后返回指定错误。
type sliceSource struct {
	fragments []Fragment
	finalErr  error // nil 时以 io.EOF 正常结束
	pos       int
}

func (s *sliceSource) Next() (Fragment, error) {
	if s.pos >= len(s.fragments) {
		if s.finalErr != nil {
			return Fragment{}, s.finalErr
		}
		return Fragment{}, io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

// recordingSink 记录每次 AddUsage 调用的 delta。
type recordingSink struct {
	deltas []int64
	err    error
}

func (r *recordingSink) AddUsage(key string, delta int64) error {
	r.deltas = append(r.deltas, delta)
	return r.err
}

func (r *recordingSink) total() int64 {
	var sum int64
	for _, d := range r.deltas {
		sum += d
	}
	return sum
}

func TestConsumePhaseTransition(t *testing.T) {
	src := &sliceSource{fragments: []Fragment{
		{ReasoningDelta: "思考"},
		{ReasoningDelta: "中"},
		{AnswerDelta: "答案"},
		{ReasoningDelta: "迟到的推理", AnswerDelta: "继续"},
	}}
	sink := &recordingSink{}
	consumer := NewConsumer(sink, "test-key", nil)

	var phases []bool
	consumer.OnFragment = func(f Fragment, answering bool) {
		phases = append(phases, answering)
	}

	reasoning, answer, err := consumer.Consume(src)
	if err != nil {
		t.Fatalf("Consume 返回错误: %v", err)
	}
	if reasoning != "思考中" {
		t.Errorf("推理文本 = %q, 期望 %q（回答开始后的推理增量不再累积）", reasoning, "思考中")
	}
	if answer != "答案继续" {
		t.Errorf("回答文本 = %q, 期望 %q", answer, "答案继续")
	}
	// 阶段切换单向：第三个 fragment 起进入回答阶段，不再回退。
	wantPhases := []bool{false, false, true, true}
	for i, p := range phases {
		if p != wantPhases[i] {
			t.Errorf("第 %d 个 fragment 的 answering = %v, 期望 %v", i+1, p, wantPhases[i])
		}
	}
}

func TestConsumeFlushCadence(t *testing.T) {
	cases := []struct {
		fragments  int
		wantFlushs int
	}{
		{5, 1},  // 不足一个周期，只有尾部刷写
		{10, 1}, // 恰好一个周期，尾部无剩余
		{20, 2},
		{25, 3}, // 两次周期刷写 + 一次尾部刷写
	}
	for _, tc := range cases {
		fragments := make([]Fragment, tc.fragments)
		for i := range fragments {
			fragments[i] = Fragment{AnswerDelta: "x"}
		}
		sink := &recordingSink{}
		consumer := NewConsumer(sink, "test-key", nil)

		_, _, err := consumer.Consume(&sliceSource{fragments: fragments})
		if err != nil {
			t.Fatalf("Consume(%d fragments) 返回错误: %v", tc.fragments, err)
		}
		if len(sink.deltas) != tc.wantFlushs {
			t.Errorf("%d 个 fragment 产生 %d 次刷写, 期望 %d", tc.fragments, len(sink.deltas), tc.wantFlushs)
		}
		if sink.total() != int64(tc.fragments) {
			t.Errorf("%d 个 fragment 累计入账 %d units, 期望 %d", tc.fragments, sink.total(), tc.fragments)
		}
	}
}

func TestConsumeBillsBothChannels(t *testing.T) {
	// 推理和回答增量都计费："思" 2 + "ok" 2 = 4。
	src := &sliceSource{fragments: []Fragment{
		{ReasoningDelta: "思", AnswerDelta: "ok"},
	}}
	sink := &recordingSink{}
	consumer := NewConsumer(sink, "test-key", nil)

	if _, _, err := consumer.Consume(src); err != nil {
		t.Fatalf("Consume 返回错误: %v", err)
	}
	if sink.total() != 4 {
		t.Errorf("累计入账 %d units, 期望 4", sink.total())
	}
}

func TestConsumeZeroDeltaFragments(t *testing.T) {
	// 全空 fragment 也维持固定刷写节奏，周期刷写会以 0 delta 调用 sink，
	// 但尾部计数为零时不再额外刷写。
	fragments := make([]Fragment, 10)
	sink := &recordingSink{}
	consumer := NewConsumer(sink, "test-key", nil)

	if _, _, err := consumer.Consume(&sliceSource{fragments: fragments}); err != nil {
		t.Fatalf("Consume 返回错误: %v", err)
	}
	if len(sink.deltas) != 1 {
		t.Fatalf("10 个空 fragment 产生 %d 次刷写, 期望 1", len(sink.deltas))
	}
	if sink.deltas[0] != 0 {
		t.Errorf("周期刷写 delta = %d, 期望 0", sink.deltas[0])
	}
}

func TestConsumeMidStreamError(t *testing.T) {
	streamErr := errors.New("connection reset")
	fragments := make([]Fragment, 15)
	for i := range fragments {
		fragments[i] = Fragment{AnswerDelta: "x"}
	}
	sink := &recordingSink{}
	consumer := NewConsumer(sink, "test-key", nil)

	_, answer, err := consumer.Consume(&sliceSource{fragments: fragments, finalErr: streamErr})
	if !errors.Is(err, streamErr) {
		t.Fatalf("期望中途错误透传, 实际: %v", err)
	}
	// 出错前已累积的文本要返回给调用方。
	if len(answer) != 15 {
		t.Errorf("出错时已累积回答 %d 字符, 期望 15", len(answer))
	}
	// 只有第 10 个 fragment 的周期刷写入账；之后 5 个 fragment 的计数随错误丢弃。
	if len(sink.deltas) != 1 || sink.total() != 10 {
		t.Errorf("出错后入账 %v (共 %d units), 期望一次 10 units 的刷写", sink.deltas, sink.total())
	}
}

func TestConsumeSinkFailureDoesNotAbort(t *testing.T) {
	fragments := make([]Fragment, 12)
	for i := range fragments {
		fragments[i] = Fragment{AnswerDelta: "x"}
	}
	sink := &recordingSink{err: errors.New("db locked")}
	consumer := NewConsumer(sink, "test-key", nil)

	// 账本写入失败只记录，不中断流消费。
	_, answer, err := consumer.Consume(&sliceSource{fragments: fragments})
	if err != nil {
		t.Fatalf("sink 失败不应中断消费, 实际错误: %v", err)
	}
	if len(answer) != 12 {
		t.Errorf("回答累积 %d 字符, 期望 12", len(answer))
	}
}
