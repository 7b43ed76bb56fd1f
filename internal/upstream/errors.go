package upstream

import "fmt"

func errWorkerStopped(server string) error {
	return fmt.Errorf("worker for server %q has shut down", server)
}
