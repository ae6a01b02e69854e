package convert

import "github.com/migadu/procsieve/sieve"

// Diagnostics collects the problems a translation run could not carry over.
// Every placeholder in the emitted script has a matching entry here, so the
// driver can log them and signal an imperfect conversion in its exit code.
type Diagnostics struct {
	messages []string
}

// Report records a problem.
func (d *Diagnostics) Report(message string) {
	d.messages = append(d.messages, message)
}

// Count returns the number of recorded problems.
func (d *Diagnostics) Count() int {
	return len(d.messages)
}

// Messages returns the recorded problems in report order.
func (d *Diagnostics) Messages() []string {
	return d.messages
}

// Fixme records the problem and returns the script node marking the spot,
// so untranslatable constructs stay visible in both the output and the run
// report.
func (d *Diagnostics) Fixme(problem string, placeholder sieve.Command) sieve.Fixme {
	d.Report(problem)
	return sieve.Fixme{Problem: problem, Placeholder: placeholder}
}
