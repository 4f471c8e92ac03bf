package kernel

// print emits a short diagnostic string to the UART.
func (k *Kernel) print(s string) {
	for i := 0; i < len(s); i++ {
		k.uart.Putc(s[i])
	}
}

// printPID emits a PID as one or two decimal digits.
func (k *Kernel) printPID(pid PID) {
	units := pid % 10
	if pid >= 10 {
		tens := (pid - units) / 10
		k.uart.Putc('0' + byte(tens))
	}
	k.uart.Putc('0' + byte(units))
}
