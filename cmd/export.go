package cmd

import (
	"fmt"
	"hstable-service/service"
	"hstable-service/table"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) newExportCmd() *cobra.Command {
	var (
		fids     []string
		query    string
		sortFid  string
		limit    int
		encoding string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出记录为CSV",
		Long:  "按字段名导出记录为CSV，不输出表头。未指定 --fids 时导出全部映射字段。",
		Example: `  hstable export --app-id app --table-id tbl --fid name=6 --fid status=7 --fids name,status
  hstable export --fids name --query "{'7'.EX.'open'}" --encoding gbk -o records.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)

			svc, cleanup, err := a.buildService(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := svc.ExportCSV(ctx, service.RecordsQuery{
				Fids:  fids,
				Query: query,
				Sort:  sortFid,
				Limit: limit,
			}, encoding)
			if err != nil {
				return err
			}

			return writeOutput(cmd, out, data)
		},
	}

	cmd.Flags().StringSliceVar(&fids, "fids", nil, "导出的字段名，逗号分隔")
	cmd.Flags().StringVarP(&query, "query", "q", "", "过滤条件")
	cmd.Flags().StringVar(&sortFid, "sort", "", "排序字段ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "最多导出条数，0表示不限制")
	cmd.Flags().StringVar(&encoding, "encoding", table.EncodingUTF8, "输出编码 utf-8/gbk")
	cmd.Flags().StringVarP(&out, "out", "o", "", "输出文件路径，默认输出到stdout")

	return cmd
}

// writeOutput 写入文件，path 为空时写入命令的标准输出
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("创建输出文件失败: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("写入输出失败: %w", err)
	}
	return nil
}
