package pipeline

import (
	"fmt"
	"math"
	"sync"

	"obesityboard/dataset"
)

// QualityRule 数据质量规则，只报告问题，不修改或过滤记录
type QualityRule interface {
	Check(dataset.Record) error
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // low, medium, high
	Message  string `json:"message"`
	Row      int    `json:"row"`
}

// AuditStats 审计统计
type AuditStats struct {
	TotalChecked int            `json:"total_checked"`
	Flagged      int            `json:"flagged"`
	Issues       map[string]int `json:"issues"`
}

type severityRule interface {
	Severity() string
}

// Auditor 数据审计器
type Auditor struct {
	rules []QualityRule
	mu    sync.Mutex
}

// NewAuditor 创建带默认规则的审计器
func NewAuditor() *Auditor {
	a := &Auditor{}
	a.AddRule(NewAgeRangeRule())
	a.AddRule(NewHeightRangeRule())
	a.AddRule(NewWeightRangeRule())
	a.AddRule(NewBMIConsistencyRule())
	return a
}

// AddRule 添加规则
func (a *Auditor) AddRule(rule QualityRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, rule)
}

// Audit 对每条记录应用全部规则。row 从 0 开始，对应输入切片下标。
func (a *Auditor) Audit(records []dataset.Record) ([]QualityIssue, AuditStats) {
	a.mu.Lock()
	rules := append([]QualityRule(nil), a.rules...)
	a.mu.Unlock()

	stats := AuditStats{Issues: make(map[string]int)}
	var issues []QualityIssue
	for i, r := range records {
		stats.TotalChecked++
		flagged := false
		for _, rule := range rules {
			if err := rule.Check(r); err != nil {
				severity := "medium"
				if s, ok := rule.(severityRule); ok {
					severity = s.Severity()
				}
				issues = append(issues, QualityIssue{
					Type:     rule.Name(),
					Severity: severity,
					Message:  err.Error(),
					Row:      i,
				})
				stats.Issues[rule.Name()]++
				flagged = true
			}
		}
		if flagged {
			stats.Flagged++
		}
	}
	return issues, stats
}

// ============ 规则实现 ============

// AgeRangeRule 年龄范围
type AgeRangeRule struct {
	MinAge int
	MaxAge int
}

func NewAgeRangeRule() *AgeRangeRule {
	return &AgeRangeRule{MinAge: 1, MaxAge: 120}
}

func (r *AgeRangeRule) Name() string { return "age_range" }

func (r *AgeRangeRule) Check(rec dataset.Record) error {
	if rec.Age < r.MinAge || rec.Age > r.MaxAge {
		return fmt.Errorf("age %d out of range [%d, %d]", rec.Age, r.MinAge, r.MaxAge)
	}
	return nil
}

// HeightRangeRule 身高范围（厘米）
type HeightRangeRule struct {
	MinHeight float64
	MaxHeight float64
}

func NewHeightRangeRule() *HeightRangeRule {
	return &HeightRangeRule{MinHeight: 50, MaxHeight: 250}
}

func (r *HeightRangeRule) Name() string { return "height_range" }

func (r *HeightRangeRule) Check(rec dataset.Record) error {
	if rec.Height < r.MinHeight || rec.Height > r.MaxHeight {
		return fmt.Errorf("height %.1f out of range [%.1f, %.1f]", rec.Height, r.MinHeight, r.MaxHeight)
	}
	return nil
}

// WeightRangeRule 体重范围（千克）
type WeightRangeRule struct {
	MinWeight float64
	MaxWeight float64
}

func NewWeightRangeRule() *WeightRangeRule {
	return &WeightRangeRule{MinWeight: 2, MaxWeight: 400}
}

func (r *WeightRangeRule) Name() string { return "weight_range" }

func (r *WeightRangeRule) Check(rec dataset.Record) error {
	if rec.Weight < r.MinWeight || rec.Weight > r.MaxWeight {
		return fmt.Errorf("weight %.1f out of range [%.1f, %.1f]", rec.Weight, r.MinWeight, r.MaxWeight)
	}
	return nil
}

// BMIConsistencyRule 检查 BMI 与 weight/(height/100)^2 是否一致
type BMIConsistencyRule struct {
	// RelativeTolerance 允许的相对偏差
	RelativeTolerance float64
}

func NewBMIConsistencyRule() *BMIConsistencyRule {
	return &BMIConsistencyRule{RelativeTolerance: 0.15}
}

func (r *BMIConsistencyRule) Name() string { return "bmi_consistency" }

func (r *BMIConsistencyRule) Severity() string { return "low" }

func (r *BMIConsistencyRule) Check(rec dataset.Record) error {
	if rec.Height <= 0 {
		return fmt.Errorf("cannot derive BMI from height %.1f", rec.Height)
	}
	meters := rec.Height / 100
	expected := rec.Weight / (meters * meters)
	if expected == 0 {
		return nil
	}
	if math.Abs(rec.BMI-expected)/expected > r.RelativeTolerance {
		return fmt.Errorf("bmi %.1f differs from weight/height^2 = %.1f", rec.BMI, expected)
	}
	return nil
}
