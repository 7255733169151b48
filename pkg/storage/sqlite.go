package storage

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(dbPath string) (DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "open sqlite3 db failed")
	}

	// info && progress are both (string, string) tuples
	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS info (job_name TEXT PRIMARY KEY, job_info TEXT)"); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create info table failed")
	}
	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS progress (job_name TEXT PRIMARY KEY, progress TEXT)"); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create progress table failed")
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) AddJob(jobName string, jobInfo string) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM info WHERE job_name = ?", jobName).Scan(&count)
	if err != nil {
		return xerror.Wrap(err, xerror.Normal, "query job count failed")
	}
	if count > 0 {
		return ErrJobExists
	}

	_, err = s.db.Exec("INSERT INTO info (job_name, job_info) VALUES (?, ?)", jobName, jobInfo)
	return err
}

func (s *SQLiteDB) UpdateJob(jobName string, jobInfo string) error {
	exist, err := s.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = s.db.Exec("UPDATE info SET job_info = ? WHERE job_name = ?", jobInfo, jobName)
	return err
}

func (s *SQLiteDB) RemoveJob(jobName string) error {
	if _, err := s.db.Exec("DELETE FROM info WHERE job_name = ?", jobName); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM progress WHERE job_name = ?", jobName)
	return err
}

func (s *SQLiteDB) IsJobExist(jobName string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM info WHERE job_name = ?", jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteDB) GetJobInfo(jobName string) (string, error) {
	var jobInfo string
	err := s.db.QueryRow("SELECT job_info FROM info WHERE job_name = ?", jobName).Scan(&jobInfo)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return jobInfo, nil
}

func (s *SQLiteDB) GetAllJobs() (map[string]string, error) {
	rows, err := s.db.Query("SELECT job_name, job_info FROM info")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var jobName, jobInfo string
		if err = rows.Scan(&jobName, &jobInfo); err != nil {
			return nil, err
		}
		result[jobName] = jobInfo
	}
	return result, rows.Err()
}

func (s *SQLiteDB) UpdateProgress(jobName string, progress string) error {
	exist, err := s.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = s.db.Exec(
		"INSERT INTO progress (job_name, progress) VALUES (?, ?) "+
			"ON CONFLICT(job_name) DO UPDATE SET progress = excluded.progress",
		jobName, progress)
	return err
}

func (s *SQLiteDB) IsProgressExist(jobName string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM progress WHERE job_name = ?", jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteDB) GetProgress(jobName string) (string, error) {
	var progress string
	err := s.db.QueryRow("SELECT progress FROM progress WHERE job_name = ?", jobName).Scan(&progress)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return progress, nil
}
