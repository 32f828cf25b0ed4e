package storage

import (
	"encoding/json"
	"errors"

	"stakesim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeRounds(rounds []model.RoundRecord) ([]byte, error) {
	return json.Marshal(rounds)
}

func DecodeRounds(data []byte) ([]model.RoundRecord, error) {
	var rounds []model.RoundRecord
	if err := json.Unmarshal(data, &rounds); err != nil {
		return nil, err
	}
	for _, round := range rounds {
		if err := checkVersion(round.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
