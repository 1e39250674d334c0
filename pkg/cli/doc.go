/*
Package cli provides command-line interface utilities for Ganymede.

The cli package includes output formatters, error types, and signal
handling helpers used by the ganymede command.

Output Formatting:

Commands that print data support text and JSON output:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, result)
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
