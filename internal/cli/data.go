package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/harun/smprofiler/pkg/client"
	"github.com/spf13/cobra"
)

var (
	dataBucket string
	dataObject string
	dataMin    float64
	dataMax    float64
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Read stored profiler datasets through a running service",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a dataset, optionally limited to a date range",
	Example: `  smprofiler data fetch --bucket profiles --object run-1/metrics.json
  smprofiler data fetch --bucket profiles --object run-1/metrics.json --min 1700000000 --max 1700003600 -o json`,
	Args: cobra.NoArgs,
	RunE: runDataFetch,
}

func init() {
	dataFetchCmd.Flags().StringVar(&dataBucket, "bucket", "", "bucket holding the dataset")
	dataFetchCmd.Flags().StringVar(&dataObject, "object", "", "object key of the dataset")
	dataFetchCmd.Flags().Float64Var(&dataMin, "min", 0, "inclusive lower bound on date")
	dataFetchCmd.Flags().Float64Var(&dataMax, "max", 0, "inclusive upper bound on date")
	dataCmd.AddCommand(dataFetchCmd)
	rootCmd.AddCommand(dataCmd)
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	query := client.DataQuery{Bucket: dataBucket, Object: dataObject}
	if cmd.Flags().Changed("min") {
		lo := dataMin
		query.Min = &lo
	}
	if cmd.Flags().Changed("max") {
		hi := dataMax
		query.Max = &hi
	}

	c, ctx, cancel, err := clientContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	points, err := c.FetchData(ctx, query)
	if err != nil {
		return err
	}

	return printOutput(cmd.OutOrStdout(), outputFormat, points, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "DATE\tVALUE\tSERIES")
		for _, p := range points {
			fmt.Fprintf(tw, "%s\t%s\t%s\n",
				strconv.FormatFloat(p.Timestamp, 'g', -1, 64),
				strconv.FormatFloat(p.Value, 'g', -1, 64),
				p.Series)
		}
	})
}
