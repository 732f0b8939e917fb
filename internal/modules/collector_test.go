package modules

import "testing"

func TestUpdateSortsAndCopies(t *testing.T) {
	c := NewCollector()
	c.Update(7, []Slot{{SlotID: 3, ConfigID: 30}, {SlotID: 1, ConfigID: 10}})

	l, ok := c.Get(7)
	if !ok {
		t.Fatal("loadout missing")
	}
	if len(l.Slots) != 2 || l.Slots[0].SlotID != 1 || l.Slots[1].SlotID != 3 {
		t.Fatalf("slots = %+v", l.Slots)
	}

	l.Slots[0].ConfigID = 999
	again, _ := c.Get(7)
	if again.Slots[0].ConfigID != 10 {
		t.Error("Get returned shared slice")
	}
}

func TestUpdateIgnoresUnknownPlayer(t *testing.T) {
	c := NewCollector()
	c.Update(0, []Slot{{SlotID: 1}})
	if len(c.UIDs()) != 0 {
		t.Fatal("uid 0 stored")
	}

	c.Update(9, nil)
	c.Update(2, nil)
	if got := c.UIDs(); len(got) != 2 || got[0] != 2 || got[1] != 9 {
		t.Errorf("UIDs = %v", got)
	}
	c.Clear()
	if _, ok := c.Get(9); ok {
		t.Error("Clear kept loadout")
	}
}
