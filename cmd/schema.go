package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newSchemaCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "输出表结构JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)

			svc, cleanup, err := a.buildService(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			schema, err := svc.Schema(ctx)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("序列化表结构失败: %w", err)
			}

			return writeOutput(cmd, out, append(data, '\n'))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "输出文件路径，默认输出到stdout")
	return cmd
}
