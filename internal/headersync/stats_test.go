package headersync

import (
	"errors"
	"sync"
	"testing"
)

func TestTracker_RecordAccepted(t *testing.T) {
	tr := NewTracker()
	tr.RecordAccepted(7, false, []string{"01aa", "01bb"})
	tr.RecordAccepted(7, true, []string{"01aa"})

	s := tr.GetChainStats(7)
	if s == nil {
		t.Fatal("GetChainStats returned nil")
	}
	if s.Accepted != 2 || s.Rotations != 1 {
		t.Errorf("Accepted=%d Rotations=%d, want 2 1", s.Accepted, s.Rotations)
	}
	if s.LastAccepted.IsZero() {
		t.Error("LastAccepted should be set")
	}

	if ss := tr.GetSignerStats("01aa"); ss == nil || ss.Signed != 2 {
		t.Errorf("signer 01aa stats = %+v, want Signed=2", ss)
	}
	if ss := tr.GetSignerStats("01bb"); ss == nil || ss.Signed != 1 {
		t.Errorf("signer 01bb stats = %+v, want Signed=1", ss)
	}
}

func TestTracker_RecordRejectedAndDuplicate(t *testing.T) {
	tr := NewTracker()
	tr.RecordRejected(3, errors.New("bad header"))
	tr.RecordDuplicate(3)
	tr.RecordDuplicate(3)

	s := tr.GetChainStats(3)
	if s.Rejected != 1 || s.Duplicates != 2 {
		t.Errorf("Rejected=%d Duplicates=%d, want 1 2", s.Rejected, s.Duplicates)
	}
	if s.LastError != "bad header" {
		t.Errorf("LastError = %q", s.LastError)
	}
	if s.LastRejected.IsZero() {
		t.Error("LastRejected should be set")
	}
}

func TestTracker_UnknownReturnsNil(t *testing.T) {
	tr := NewTracker()
	if tr.GetChainStats(1) != nil {
		t.Error("GetChainStats for unknown chain should be nil")
	}
	if tr.GetSignerStats("00") != nil {
		t.Error("GetSignerStats for unknown key should be nil")
	}
}

func TestTracker_GetStatsReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.RecordAccepted(1, false, nil)

	s := tr.GetChainStats(1)
	s.Accepted = 100
	if tr.GetChainStats(1).Accepted != 1 {
		t.Error("modifying the returned stats affected the tracker")
	}
}

func TestTracker_AllStatsOrdered(t *testing.T) {
	tr := NewTracker()
	for _, id := range []uint64{9, 2, 5} {
		tr.RecordDuplicate(id)
	}
	tr.RecordAccepted(2, false, []string{"03", "01", "02"})

	all := tr.GetAllChainStats()
	if len(all) != 3 || all[0].ChainID != 2 || all[1].ChainID != 5 || all[2].ChainID != 9 {
		t.Errorf("GetAllChainStats order wrong: %+v", all)
	}
	signers := tr.GetAllSignerStats()
	if len(signers) != 3 || signers[0].PubKey != "01" || signers[2].PubKey != "03" {
		t.Errorf("GetAllSignerStats order wrong: %+v", signers)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordAccepted(1, false, []string{"aa"})
			tr.GetAllChainStats()
		}()
	}
	wg.Wait()
	if got := tr.GetChainStats(1).Accepted; got != 50 {
		t.Errorf("Accepted = %d, want 50", got)
	}
}
