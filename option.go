package go3pc

import "github.com/xiaoxuxiansheng/go3pc/log"

type Options struct {
	// 注入的结构化日志组件
	Logger log.Logger
}

type Option func(*Options)

func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func repair(o *Options) {
	if o.Logger == nil {
		o.Logger = log.GetDefaultLogger()
	}
}

type ParticipantOption func(*Participant)

// WithTXLog 注入参与者的事务日志存储，缺省使用进程内实现
func WithTXLog(txLog TXLog) ParticipantOption {
	return func(p *Participant) {
		p.txLog = txLog
	}
}

// WithParticipantLogger 注入参与者维度的日志组件，便于测试捕获协议事件
func WithParticipantLogger(logger log.Logger) ParticipantOption {
	return func(p *Participant) {
		p.logger = logger
	}
}

func repairParticipant(p *Participant) {
	if p.txLog == nil {
		p.txLog = NewMemoryTXLog()
	}

	if p.logger == nil {
		p.logger = log.GetDefaultLogger()
	}
}
