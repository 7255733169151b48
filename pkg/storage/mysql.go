package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/selectdb/materialize_syncer/pkg/xerror"
)

type MysqlDB struct {
	db *sql.DB
}

func NewMysqlDB(host string, port int, user string, password string) (DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", user, password, host, port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "open mysql meta db failed")
	}

	if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", remoteDBName)); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create meta database failed")
	}
	if _, err = db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.info (job_name VARCHAR(128) PRIMARY KEY, job_info TEXT)", remoteDBName)); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create info table failed")
	}
	if _, err = db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.progress (job_name VARCHAR(128) PRIMARY KEY, progress TEXT)", remoteDBName)); err != nil {
		return nil, xerror.Wrap(err, xerror.Normal, "create progress table failed")
	}

	return &MysqlDB{db: db}, nil
}

func (m *MysqlDB) AddJob(jobName string, jobInfo string) error {
	exist, err := m.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if exist {
		return ErrJobExists
	}

	_, err = m.db.Exec(fmt.Sprintf("INSERT INTO %s.info (job_name, job_info) VALUES (?, ?)", remoteDBName),
		jobName, jobInfo)
	return err
}

func (m *MysqlDB) UpdateJob(jobName string, jobInfo string) error {
	exist, err := m.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = m.db.Exec(fmt.Sprintf("UPDATE %s.info SET job_info = ? WHERE job_name = ?", remoteDBName),
		jobInfo, jobName)
	return err
}

func (m *MysqlDB) RemoveJob(jobName string) error {
	if _, err := m.db.Exec(fmt.Sprintf("DELETE FROM %s.info WHERE job_name = ?", remoteDBName), jobName); err != nil {
		return err
	}
	_, err := m.db.Exec(fmt.Sprintf("DELETE FROM %s.progress WHERE job_name = ?", remoteDBName), jobName)
	return err
}

func (m *MysqlDB) IsJobExist(jobName string) (bool, error) {
	var count int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s.info WHERE job_name = ?", remoteDBName),
		jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *MysqlDB) GetJobInfo(jobName string) (string, error) {
	var jobInfo string
	err := m.db.QueryRow(fmt.Sprintf("SELECT job_info FROM %s.info WHERE job_name = ?", remoteDBName),
		jobName).Scan(&jobInfo)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return jobInfo, nil
}

func (m *MysqlDB) GetAllJobs() (map[string]string, error) {
	rows, err := m.db.Query(fmt.Sprintf("SELECT job_name, job_info FROM %s.info", remoteDBName))
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

func (m *MysqlDB) UpdateProgress(jobName string, progress string) error {
	exist, err := m.IsJobExist(jobName)
	if err != nil {
		return err
	}
	if !exist {
		return ErrJobNotExists
	}

	_, err = m.db.Exec(fmt.Sprintf(
		"INSERT INTO %s.progress (job_name, progress) VALUES (?, ?) "+
			"ON DUPLICATE KEY UPDATE progress = VALUES(progress)", remoteDBName),
		jobName, progress)
	return err
}

func (m *MysqlDB) IsProgressExist(jobName string) (bool, error) {
	var count int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s.progress WHERE job_name = ?", remoteDBName),
		jobName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *MysqlDB) GetProgress(jobName string) (string, error) {
	var progress string
	err := m.db.QueryRow(fmt.Sprintf("SELECT progress FROM %s.progress WHERE job_name = ?", remoteDBName),
		jobName).Scan(&progress)
	if err == sql.ErrNoRows {
		return "", ErrJobNotExists
	}
	if err != nil {
		return "", err
	}
	return progress, nil
}
