package activity

// Tamper exposes tamper to the external test package.
func (l *MemoryLedger) Tamper(index int, fn func(*Entry)) { l.tamper(index, fn) }
