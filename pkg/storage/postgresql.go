package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

type PostgresqlDB struct {
	db *sql.DB
}

func NewPostgresqlDB(host string, port int, user string, password string) (DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, remoteDBName)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "open postgresql meta db failed")
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS info (job_name TEXT PRIMARY KEY, job_info TEXT)"); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create info table failed")
	}
	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS progress (job_name TEXT PRIMARY KEY, progress TEXT)"); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create progress table failed")
	}

	return &PostgresqlDB{db: db}, nil
}

func (p *PostgresqlDB) AddJob(jobName string, jobInfo string) error {
	exist, err := p.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if exist {
		return ErrJobExists
	}

	_, err = p.db.Exec("INSERT INTO info (job_name, job_info) VALUES ($1, $2)", jobName, jobInfo)
	return err
}

func (p *PostgresqlDB) UpdateJob(jobName string, jobInfo string) error {
	exist, err := p.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = p.db.Exec("UPDATE info SET job_info = $1 WHERE job_name = $2", jobInfo, jobName)
	return err
}

func (p *PostgresqlDB) RemoveJob(jobName string) error {
	if _, err := p.db.Exec("DELETE FROM info WHERE job_name = $1", jobName); err != nil {
		return err
	}
	_, err := p.db.Exec("DELETE FROM progress WHERE job_name = $1", jobName)
	return err
}

func (p *PostgresqlDB) IsJobExist(jobName string) (bool, error) {
	var count int
	err := p.db.QueryRow("SELECT COUNT(*) FROM info WHERE job_name = $1", jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PostgresqlDB) GetJobInfo(jobName string) (string, error) {
	var jobInfo string
	err := p.db.QueryRow("SELECT job_info FROM info WHERE job_name = $1", jobName).Scan(&jobInfo)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return jobInfo, nil
}

func (p *PostgresqlDB) GetAllJobs() (map[string]string, error) {
	rows, err := p.db.Query("SELECT job_name, job_info FROM info")
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

func (p *PostgresqlDB) UpdateProgress(jobName string, progress string) error {
	exist, err := p.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = p.db.Exec(
		"INSERT INTO progress (job_name, progress) VALUES ($1, $2) "+
			"ON CONFLICT (job_name) DO UPDATE SET progress = EXCLUDED.progress",
		jobName, progress)
	return err
}

func (p *PostgresqlDB) IsProgressExist(jobName string) (bool, error) {
	var count int
	err := p.db.QueryRow("SELECT COUNT(*) FROM progress WHERE job_name = $1", jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PostgresqlDB) GetProgress(jobName string) (string, error) {
	var progress string
	err := p.db.QueryRow("SELECT progress FROM progress WHERE job_name = $1", jobName).Scan(&progress)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return progress, nil
}
