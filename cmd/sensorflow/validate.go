package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ghalamif/sensorflow/pkg/sensorflow"
)

func validateCommand(args []string) error {
	fs := newFlagSet("validate")
	cfgPath := fs.String("config", "", "Configuration file to validate")
	readingsPath := fs.String("readings", "", "JSON array or newline-delimited JSON of readings to check (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" && *readingsPath == "" {
		return errors.New("one of --config or --readings is required")
	}

	if *cfgPath != "" {
		if _, err := sensorflow.LoadConfig(*cfgPath); err != nil {
			return err
		}
		fmt.Printf("config %s looks good\n", *cfgPath)
	}

	if *readingsPath != "" {
		in := io.Reader(os.Stdin)
		if *readingsPath != "-" {
			f, err := os.Open(*readingsPath)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		valid, invalid, err := validateReadings(in, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Printf("%d valid, %d invalid\n", valid, invalid)
		if invalid > 0 {
			return fmt.Errorf("%d readings failed validation", invalid)
		}
	}
	return nil
}

// validateReadings applies the consumer's rules to every reading in r and writes one line
// per failure to w.
func validateReadings(r io.Reader, w io.Writer) (valid, invalid int, err error) {
	br := bufio.NewReader(r)
	msgs, err := decodeMessages(br)
	if err != nil {
		return 0, 0, err
	}

	for i, m := range msgs {
		rd, err := m.Reading()
		if err == nil {
			err = sensorflow.Validate(rd)
		}
		if err != nil {
			invalid++
			fmt.Fprintf(w, "#%d %s/%s: %v\n", i+1, m.SensorType, m.SensorID, err)
			continue
		}
		valid++
	}
	return valid, invalid, nil
}

func decodeMessages(br *bufio.Reader) ([]sensorflow.ReadingMessage, error) {
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var msgs []sensorflow.ReadingMessage
		if err := dec.Decode(&msgs); err != nil {
			return nil, fmt.Errorf("decode readings: %w", err)
		}
		return msgs, nil
	}

	var msgs []sensorflow.ReadingMessage
	for {
		var m sensorflow.ReadingMessage
		if err := dec.Decode(&m); err == io.EOF {
			return msgs, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode reading %d: %w", len(msgs)+1, err)
		}
		msgs = append(msgs, m)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
