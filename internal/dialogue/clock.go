package dialogue

import (
	"fmt"

	"curie/internal/timers"
)

// startClock plant Warnung und Ende der Sitzung sowie die Lernminuten
func (m *Machine) startClock() {
	m.d.Bank.Arm(timers.SessionWarn, m.t.SessionWarn, m.warnSession)
	m.d.Bank.Arm(timers.SessionEnd, m.t.Session, m.endSession)
	if m.s.User != nil && m.d.Activity != nil {
		m.tickActivity()
	}
}

func (m *Machine) tickActivity() {
	m.d.Activity.AddMinute(m.s.User.Username)
	m.d.Bank.Arm(timers.ActivityTick, m.t.ActivityTick, m.tickActivity)
}

func (m *Machine) warnSession() {
	msg := fmt.Sprintf(warningFmt, m.s.FirstName())
	m.add(RoleTutor, "⏰ "+msg)
	m.speak(msg, nil)
}

func (m *Machine) endSession() {
	msg := fmt.Sprintf(endFmt, m.s.FirstName())
	m.speak(msg, nil)
	m.add(RoleTutor, "🛑 "+msg)
	m.log.Info("🛑 Sitzungszeit abgelaufen")

	m.transition(PhaseEnded)
	m.d.Bank.Cancel(timers.ActivityTick, timers.DecomposeHint)
	m.stopListening()
	m.d.Surface.Render(View{Screen: ScreenEnded})
	m.d.Bank.Arm(timers.Logout, m.t.LogoutDelay, func() {
		m.d.Surface.SessionEnded("session_complete")
		m.d.Bank.CancelAll()
	})
}
