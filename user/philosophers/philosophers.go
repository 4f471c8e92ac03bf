// Package philosophers is the dining-philosophers demo: one waiter process
// arbitrates chopstick access for NumPhilosophers philosopher processes
// over per-philosopher pipe pairs.
//
// To avoid deadlock the waiter decides when a philosopher may pick its
// chopsticks up, and to avoid starvation it serves philosophers who have
// eaten the fewest meals first.
package philosophers

import "verso/user"

const NumPhilosophers = 16

type chopstickStatus uint8

const (
	statusIdle chopstickStatus = iota
	statusRequested
	statusHolding
)

func writePhilosopherID(env *user.Env, id int) {
	env.WriteString(user.Stdout, "\nPhilosopher ")
	var buf [3]byte
	n := user.Itoa(buf[:], int32(id+1))
	env.Write(user.Stdout, buf[:n])
	env.WriteString(user.Stdout, " ")
}

func think(env *user.Env, id int) {
	writePhilosopherID(env, id)
	env.WriteString(user.Stdout, "is thinking")
}

func requestChopsticks(env *user.Env, id int, fdWrite int32) bool {
	n := env.Write(fdWrite, []byte{'R'})

	writePhilosopherID(env, id)
	env.WriteString(user.Stdout, "request chopsticks")

	return n == 1
}

// getWaiterReply returns 0 for no reply yet, 1 for denied, 2 for granted.
func getWaiterReply(env *user.Env, fdRead int32) int {
	var reply [1]byte
	n := env.Read(fdRead, reply[:])
	if n != 1 {
		return 0
	}
	if reply[0] == 'Y' {
		return 2
	}
	return 1
}

func eat(env *user.Env, id int) {
	writePhilosopherID(env, id)
	env.WriteString(user.Stdout, "is eating")
}

func putDownChopsticks(env *user.Env, id int, fdWrite int32) bool {
	n := env.Write(fdWrite, []byte{'P'})

	writePhilosopherID(env, id)
	env.WriteString(user.Stdout, "putting chopsticks down")

	return n == 1
}

func philosopher(env *user.Env, id int, fdRead, fdWrite int32) {
	status := statusIdle
	for {
		think(env, id)

		if status == statusIdle {
			if requestChopsticks(env, id, fdWrite) {
				status = statusRequested
			}
			env.Yield()
		}

		switch getWaiterReply(env, fdRead) {
		case 0: // no reply from the waiter yet
			env.Yield()
		case 1: // chopsticks unavailable
			status = statusIdle
		case 2: // chopsticks available
			writePhilosopherID(env, id)
			env.WriteString(user.Stdout, "picking chopsticks up")
			status = statusHolding
			eat(env, id)
		}

		if status == statusHolding {
			if putDownChopsticks(env, id, fdWrite) {
				status = statusIdle
			}
		}
	}
}

// Main sets up the pipes, forks the philosophers and runs the waiter.
func Main(env *user.Env) {
	env.WriteString(user.Stdout, "\nPhilosophers start")

	var fdWaiterRead [NumPhilosophers]int32
	var fdWaiterWrite [NumPhilosophers]int32

	var priority [NumPhilosophers]int32 // meals eaten per philosopher
	maxPriority := int32(0)             // fewest meals eaten so far

	var chopstickFree [NumPhilosophers]bool
	for i := range chopstickFree {
		chopstickFree[i] = true
	}

	for i := 0; i < NumPhilosophers; i++ {
		// One pipe per direction: waiter->philosopher and back.
		wtopRead, wtopWrite, ok1 := env.Pipe()
		ptowRead, ptowWrite, ok2 := env.Pipe()
		if !ok1 || !ok2 {
			env.WriteString(user.Stdout, "\nERROR: pipe failed")
			env.Exit(1)
		}

		fdWaiterRead[i] = ptowRead
		fdWaiterWrite[i] = wtopWrite
		fdPhilosopherRead := wtopRead
		fdPhilosopherWrite := ptowWrite

		id := i
		pid := env.Fork(func(child *user.Env) {
			// The philosopher drops the waiter-side descriptors it
			// inherited and bumps its own priority.
			for j := 0; j <= id; j++ {
				child.Close(fdWaiterWrite[j])
				child.Close(fdWaiterRead[j])
			}
			child.Nice(child.PID(), -1)
			philosopher(child, id, fdPhilosopherRead, fdPhilosopherWrite)
		})
		if pid == -1 {
			env.WriteString(user.Stdout, "\nERROR: fork failed")
			env.Exit(1)
		}

		// The waiter drops the philosopher-side descriptors.
		env.Close(fdPhilosopherRead)
		env.Close(fdPhilosopherWrite)
	}

	env.Yield()

	for {
		env.WriteString(user.Stdout, "\nWaiter")

		// Serve philosophers in least-meals-first order.
		served := 0
		p := maxPriority
		maxPriority++
		for served < NumPhilosophers {
			for id := 0; id < NumPhilosophers; id++ {
				if priority[id] != p {
					continue
				}

				var r [1]byte
				n := env.Read(fdWaiterRead[id], r[:])
				if n == 1 {
					switch r[0] {
					case 'R': // requesting chopsticks
						if chopstickFree[id] && chopstickFree[(id+1)%NumPhilosophers] {
							if env.Write(fdWaiterWrite[id], []byte{'Y'}) == 1 {
								chopstickFree[id] = false
								chopstickFree[(id+1)%NumPhilosophers] = false
								priority[id]++
							}
						} else {
							env.Write(fdWaiterWrite[id], []byte{'N'})
						}

					case 'P': // putting chopsticks down
						chopstickFree[id] = true
						chopstickFree[(id+1)%NumPhilosophers] = true

					default:
						writePhilosopherID(env, id)
						env.WriteString(user.Stdout, "\nERROR: not valid request")
						env.Exit(1)
					}
				}
				served++
				if priority[id] < maxPriority {
					maxPriority--
				}
			}
			p++
		}
		env.Yield()
	}
}
