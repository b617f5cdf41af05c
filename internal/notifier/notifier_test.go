package notifier

import "testing"

func TestNotify_NilNotifierIsNoop(t *testing.T) {
	var n *Notifier

	if err := n.Notify("u1", TemplateOutbid, "item1", "Painting #7"); err != nil {
		t.Fatalf("nil notifier must not fail: %v", err)
	}
}

func TestNotify_UnconnectedNotifierIsNoop(t *testing.T) {
	n := &Notifier{}

	if err := n.Notify("u1", TemplateWinningBid, "item1", "Painting #7"); err != nil {
		t.Fatalf("unconnected notifier must not fail: %v", err)
	}
}
