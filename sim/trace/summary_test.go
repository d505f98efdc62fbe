package trace

import "testing"

func TestSummarize_EmptyRun_ZeroValues(t *testing.T) {
	r := NewRun(Config{Level: LevelDecisions})

	summary := Summarize(r)

	if summary.TotalDecisions != 0 {
		t.Errorf("expected 0 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.AdmittedCount != 0 || summary.RejectedCount != 0 {
		t.Error("expected 0 admitted and rejected")
	}
	if summary.UniqueTargets != 0 {
		t.Errorf("expected 0 unique targets, got %d", summary.UniqueTargets)
	}
	if summary.MeanRegret != 0 || summary.MaxRegret != 0 {
		t.Error("expected 0 regret values")
	}
	if len(summary.TargetDistribution) != 0 {
		t.Error("expected empty target distribution")
	}
}

func TestSummarize_NilRun_ZeroValues(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalDecisions != 0 || summary.TargetDistribution == nil {
		t.Error("Summarize(nil) should return a usable zero-value summary")
	}
}

func TestSummarize_PopulatedRun_CorrectCounts(t *testing.T) {
	r := NewRun(Config{Level: LevelDecisions})
	r.RecordAdmission(AdmissionRecord{ReqID: "1-a", Admitted: true, Reason: "ok"})
	r.RecordAdmission(AdmissionRecord{ReqID: "2-a", Admitted: false, Reason: "rejected"})
	r.RecordAdmission(AdmissionRecord{ReqID: "3-a", Admitted: true, Reason: "ok"})
	r.RecordDispatch(DispatchRecord{ReqID: "1-a", ChosenInstance: "i-0", Regret: 0.1})
	r.RecordDispatch(DispatchRecord{ReqID: "3-a", ChosenInstance: "i-1", Regret: 0.3})

	summary := Summarize(r)

	if summary.TotalDecisions != 3 {
		t.Errorf("expected 3 total decisions, got %d", summary.TotalDecisions)
	}
	if summary.AdmittedCount != 2 {
		t.Errorf("expected 2 admitted, got %d", summary.AdmittedCount)
	}
	if summary.RejectedCount != 1 {
		t.Errorf("expected 1 rejected, got %d", summary.RejectedCount)
	}
	if summary.UniqueTargets != 2 {
		t.Errorf("expected 2 unique targets, got %d", summary.UniqueTargets)
	}
}

func TestSummarize_RegretStatistics_CorrectMeanAndMax(t *testing.T) {
	r := NewRun(Config{Level: LevelDecisions})
	r.RecordDispatch(DispatchRecord{ReqID: "1-a", ChosenInstance: "i-0", Regret: 0.1})
	r.RecordDispatch(DispatchRecord{ReqID: "2-a", ChosenInstance: "i-0", Regret: 0.5})
	r.RecordDispatch(DispatchRecord{ReqID: "3-a", ChosenInstance: "i-1", Regret: 0.2})

	summary := Summarize(r)

	expectedMean := (0.1 + 0.5 + 0.2) / 3.0
	if summary.MeanRegret < expectedMean-0.001 || summary.MeanRegret > expectedMean+0.001 {
		t.Errorf("expected mean regret ~%.4f, got %.4f", expectedMean, summary.MeanRegret)
	}
	if summary.MaxRegret != 0.5 {
		t.Errorf("expected max regret 0.5, got %.4f", summary.MaxRegret)
	}
}

func TestSummarize_TargetDistribution_CountsPerInstance(t *testing.T) {
	r := NewRun(Config{Level: LevelDecisions})
	r.RecordDispatch(DispatchRecord{ReqID: "1-a", ChosenInstance: "i-0"})
	r.RecordDispatch(DispatchRecord{ReqID: "2-a", ChosenInstance: "i-0"})
	r.RecordDispatch(DispatchRecord{ReqID: "3-a", ChosenInstance: "i-1"})

	summary := Summarize(r)

	if summary.TargetDistribution["i-0"] != 2 {
		t.Errorf("expected i-0 count 2, got %d", summary.TargetDistribution["i-0"])
	}
	if summary.TargetDistribution["i-1"] != 1 {
		t.Errorf("expected i-1 count 1, got %d", summary.TargetDistribution["i-1"])
	}
}
