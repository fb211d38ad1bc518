package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/recall/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import units from JSON",
		Long:  "Import units from JSON (file or stdin). Expects the format produced by export; ids already present are skipped.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	var units []model.Unit
	if err := json.Unmarshal(data, &units); err != nil {
		exitErr("parse json", err)
	}

	a := openApp(cmd)
	defer a.Close()

	res, err := a.store.Import(cmd.Context(), units)
	if err != nil {
		a.fail("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d,"skipped":%d}`+"\n", res.Imported, res.Skipped)
}
