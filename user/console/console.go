// Package console is the program behind PCB 0: it reads commands from the
// UART and launches or terminates user programs.
package console

import (
	"github.com/google/shlex"

	"verso/internal/buildinfo"
	"verso/kernel"
	"verso/user"
)

const prompt = "\n$ "

// Main runs the console. It never returns.
func Main(env *user.Env) {
	env.WriteString(user.Stdout, "\nverso "+buildinfo.Short()+" console; type 'help'")
	env.WriteString(user.Stdout, prompt)

	var line []byte
	for {
		b, ok := env.Getc()
		if !ok {
			env.Idle()
			continue
		}

		switch {
		case b == '\r' || b == '\n':
			env.WriteString(user.Stdout, "\n")
			execute(env, string(line))
			line = line[:0]
			env.WriteString(user.Stdout, prompt)

		case b == 0x08 || b == 0x7F:
			if len(line) > 0 {
				line = line[:len(line)-1]
				env.WriteString(user.Stdout, "\b \b")
			}

		case b >= 0x20 && b < 0x7F:
			line = append(line, b)
			env.Write(user.Stdout, []byte{b})
		}
	}
}

func execute(env *user.Env, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		env.WriteString(user.Stdout, "parse error")
		return
	}
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "help":
		env.WriteString(user.Stdout, "commands:\n"+
			"  run <program>     fork and exec a program (e.g. run philosophers)\n"+
			"  ps                list processes\n"+
			"  kill <pid>        terminate a process\n"+
			"  nice <pid> <n>    set niceness [-19..20]\n"+
			"  version           build information\n"+
			"  help              this text")

	case "version":
		env.WriteString(user.Stdout, "verso "+buildinfo.Long())

	case "ps":
		env.WriteString(user.Stdout, "  pid status     nice")
		for pid := kernel.PID(0); pid < kernel.MaxProcs; pid++ {
			pcb, ok := env.ProcInfo(pid)
			if !ok || pcb.Status == kernel.StatusInvalid {
				continue
			}
			env.WriteString(user.Stdout, "\n  ")
			writeInt(env, int32(pcb.PID))
			env.WriteString(user.Stdout, " "+pcb.Status.String()+" ")
			writeInt(env, pcb.Niceness)
		}

	case "run":
		if len(args) != 2 {
			env.WriteString(user.Stdout, "usage: run <program>")
			return
		}
		entry, ok := env.Lookup(args[1])
		if !ok {
			env.WriteString(user.Stdout, "unknown program: "+args[1])
			return
		}
		pid := env.Fork(func(child *user.Env) {
			child.Exec(entry)
		})
		if pid < 0 {
			env.WriteString(user.Stdout, "fork failed")
			return
		}
		env.WriteString(user.Stdout, "started "+args[1]+" pid ")
		writeInt(env, pid)

	case "kill":
		if len(args) != 2 {
			env.WriteString(user.Stdout, "usage: kill <pid>")
			return
		}
		pid, ok := user.Atoi(args[1])
		if !ok {
			env.WriteString(user.Stdout, "bad pid")
			return
		}
		if env.Kill(kernel.PID(pid), 9) != 0 {
			env.WriteString(user.Stdout, "kill failed")
		}

	case "nice":
		if len(args) != 3 {
			env.WriteString(user.Stdout, "usage: nice <pid> <n>")
			return
		}
		pid, ok1 := user.Atoi(args[1])
		val, ok2 := user.Atoi(args[2])
		if !ok1 || !ok2 {
			env.WriteString(user.Stdout, "bad argument")
			return
		}
		stored := env.Nice(kernel.PID(pid), val)
		env.WriteString(user.Stdout, "niceness ")
		writeInt(env, stored)

	default:
		env.WriteString(user.Stdout, "unknown command: "+args[0])
	}
}

func writeInt(env *user.Env, v int32) {
	var buf [12]byte
	n := user.Itoa(buf[:], v)
	env.Write(user.Stdout, buf[:n])
}
