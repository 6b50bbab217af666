package model

// BarrierScope timer point的参与范围：没有tag时是单个Job，有tag时是所有同tag的Job
type BarrierScope struct {
	JobID uint
	Tag   string
}

func ScopeOf(job *Job) BarrierScope {
	if job.Tag != "" {
		return BarrierScope{Tag: job.Tag}
	}
	return BarrierScope{JobID: job.ID}
}

func (s BarrierScope) Tagged() bool {
	return s.Tag != ""
}
