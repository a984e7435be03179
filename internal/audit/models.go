package audit

import "time"

// DecisionRecord 는 요청 한 건의 최종 판정을 저장하는 DB 모델이다.
// 입력 원문 대신 해시를 저장해 민감 정보가 남지 않게 한다.
type DecisionRecord struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	RequestID string    `gorm:"column:request_id;size:64" json:"request_id"`
	InputHash string    `gorm:"column:input_hash;size:80;index" json:"input_hash"`
	Verdict   string    `gorm:"column:verdict;size:16" json:"verdict"`
	State     string    `gorm:"column:state;size:24" json:"state"`
	PolicyID  string    `gorm:"column:policy_id;size:64" json:"policy_id"`
	Reason    string    `gorm:"column:reason" json:"reason"`
	Stages    string    `gorm:"column:stages;type:jsonb" json:"stages"`
	ElapsedMS int64     `gorm:"column:elapsed_ms" json:"elapsed_ms"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 은 GORM에서 사용할 테이블명을 반환한다.
func (DecisionRecord) TableName() string {
	return "decision_audit"
}
