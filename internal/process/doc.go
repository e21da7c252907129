// Package process supervises llama-server child processes.
//
// A launch resolves the server executable, negotiates a listen port,
// builds the command line from the model's configuration and spawns the
// child with piped output. One pump goroutine per process drains stdout
// and stderr into a bounded in-memory ring, waits for exit and removes
// the table entry, so a process that dies on its own disappears the same
// way a terminated one does.
//
// Termination is graceful first (SIGTERM where the platform has it) with
// a bounded wait, then forceful. ForceShutdown is the last-resort path
// for exit handlers: it only ever try-locks and never blocks.
package process
