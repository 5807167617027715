package engine

// Cancel asks the running inference, if any, to stop at its next checkpoint:
// before each prompt batch or generated token. It never blocks. With no
// inference running the request is dropped when the next one starts.
func (e *Engine) Cancel() error {
	if e.Poisoned() {
		return poisonedError("cancel")
	}
	e.cancel.Store(true)
	e.log.Info().Msg("cancel requested")
	return nil
}
